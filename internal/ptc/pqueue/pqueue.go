// Package pqueue is the in-memory priority queue (spec §4.3): four FIFO
// buckets by importance, plus a one-shot escalation timer on critical
// messages that broadcasts to every registered worker if the message sits
// undelivered too long. There is no aging promotion: a message never moves
// bucket, and escalation never reorders the queue.
package pqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/maumercado/ptc/internal/ptc/message"
)

// EscalationThresholds configures how long a critical message may sit
// undelivered before the escalation broadcast fires, per spec §4.3.
type EscalationThresholds struct {
	Critical time.Duration
}

// DefaultEscalationThresholds is spec §4.3's 30 second critical escalation
// window.
var DefaultEscalationThresholds = EscalationThresholds{
	Critical: 30 * time.Second,
}

// Entry is a queued message plus its escalation bookkeeping. timer is the
// pending AfterFunc, if one was armed, so Dequeue/Remove can cancel it.
type Entry struct {
	Message    *message.Message
	EnqueuedAt time.Time
	timer      *time.Timer
}

// Stats reports queue depth per bucket.
type Stats struct {
	Critical int
	High     int
	Normal   int
	Low      int
}

// Queue is a 4-bucket FIFO priority queue. A bucket is a container/list.List
// of *Entry, mirroring the teacher's priority-ordered scan in
// RedisQueue.initStreams/Enqueue (one stream per priority, consumed highest
// first), but entirely in-memory as spec §3 requires for this component.
type Queue struct {
	mu         sync.Mutex
	buckets    map[message.Importance]*list.List
	thresholds EscalationThresholds
	onEscalate func(*message.Message, message.Importance)
	closed     bool
}

// New constructs an empty queue. onEscalate, if non-nil, is invoked
// (outside the queue's lock) when a critical message's escalation timer
// fires while it is still undelivered.
func New(thresholds EscalationThresholds, onEscalate func(*message.Message, message.Importance)) *Queue {
	return &Queue{
		buckets: map[message.Importance]*list.List{
			message.ImportanceCritical: list.New(),
			message.ImportanceHigh:     list.New(),
			message.ImportanceNormal:   list.New(),
			message.ImportanceLow:      list.New(),
		},
		thresholds: thresholds,
		onEscalate: onEscalate,
	}
}

// Enqueue appends a message to the tail of its importance bucket. Critical
// messages additionally arm a 30s escalation timer (spec §4.3); the timer
// is discarded once it fires or is cancelled, never rearmed.
func (q *Queue) Enqueue(m *message.Message) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	entry := &Entry{Message: m, EnqueuedAt: time.Now().UTC()}
	q.buckets[m.Importance].PushBack(entry)
	if m.Importance == message.ImportanceCritical && q.thresholds.Critical > 0 {
		entry.timer = time.AfterFunc(q.thresholds.Critical, func() { q.fireEscalation(entry) })
	}
	q.mu.Unlock()
}

// fireEscalation runs when a critical message's timer expires. It only
// broadcasts if the message is still sitting in the queue; if it was
// already dequeued or removed, this is a no-op.
func (q *Queue) fireEscalation(entry *Entry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	bucket := q.buckets[entry.Message.Importance]
	found := false
	for e := bucket.Front(); e != nil; e = e.Next() {
		if e.Value.(*Entry) == entry {
			found = true
			break
		}
	}
	q.mu.Unlock()

	if !found {
		return
	}
	if q.onEscalate != nil {
		q.onEscalate(entry.Message, entry.Message.Importance)
	}
}

// cancelTimer stops entry's escalation timer, if any. Must be called with
// q.mu held.
func cancelTimer(entry *Entry) {
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
}

// Dequeue pops the oldest message from the highest non-empty bucket
// (critical, high, normal, low), per spec §4.3, cancelling any pending
// escalation timer on the way out.
func (q *Queue) Dequeue() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, level := range []message.Importance{message.ImportanceCritical, message.ImportanceHigh, message.ImportanceNormal, message.ImportanceLow} {
		bucket := q.buckets[level]
		if front := bucket.Front(); front != nil {
			bucket.Remove(front)
			entry := front.Value.(*Entry)
			cancelTimer(entry)
			return entry.Message, true
		}
	}
	return nil, false
}

// Peek returns the next message to be dequeued without removing it.
func (q *Queue) Peek() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, level := range []message.Importance{message.ImportanceCritical, message.ImportanceHigh, message.ImportanceNormal, message.ImportanceLow} {
		if front := q.buckets[level].Front(); front != nil {
			return front.Value.(*Entry).Message, true
		}
	}
	return nil, false
}

// Remove deletes a specific message id from whichever bucket holds it,
// cancelling its escalation timer if one was armed. Used when a claim race
// means the message no longer needs delivery.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, bucket := range q.buckets {
		for e := bucket.Front(); e != nil; e = e.Next() {
			if e.Value.(*Entry).Message.ID == id {
				cancelTimer(e.Value.(*Entry))
				bucket.Remove(e)
				return true
			}
		}
	}
	return false
}

// GetByPriority returns a snapshot slice of queued messages in a bucket,
// oldest first.
func (q *Queue) GetByPriority(level message.Importance) []*message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	bucket := q.buckets[level]
	out := make([]*message.Message, 0, bucket.Len())
	for e := bucket.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Entry).Message)
	}
	return out
}

// Lengths reports the depth of each bucket.
func (q *Queue) Lengths() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Critical: q.buckets[message.ImportanceCritical].Len(),
		High:     q.buckets[message.ImportanceHigh].Len(),
		Normal:   q.buckets[message.ImportanceNormal].Len(),
		Low:      q.buckets[message.ImportanceLow].Len(),
	}
}

// IsEmpty reports whether every bucket is empty.
func (q *Queue) IsEmpty() bool {
	s := q.Lengths()
	return s.Critical == 0 && s.High == 0 && s.Normal == 0 && s.Low == 0
}

// Clear drops every queued message, cancelling any pending escalation
// timers without running their callbacks.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, bucket := range q.buckets {
		for e := bucket.Front(); e != nil; e = e.Next() {
			cancelTimer(e.Value.(*Entry))
		}
		bucket.Init()
	}
}

// Close marks the queue closed; further Enqueue calls are dropped and
// pending escalation timers become no-ops when they fire.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
