// Package acktracker is the in-memory pending-acknowledgment registry
// (spec §4.4): tracks messages awaiting a recipient's ack and fires a
// timeout callback if none arrives in time.
package acktracker

import (
	"errors"
	"sync"
	"time"
)

// ErrNotPending is returned by Acknowledge when the id has no pending entry
// (already acknowledged, already timed out, or never registered).
var ErrNotPending = errors.New("acktracker: not pending")

// ErrNotRecipient is returned when the acknowledging party does not match
// the pending entry's recipient (spec §4.4's identity check).
var ErrNotRecipient = errors.New("acktracker: acknowledger is not the recipient")

// pending is one message's acknowledgment bookkeeping, guarded by the
// tracker's mutex (teacher's Heartbeat.infoMu guards a single struct the
// same way; here the guarded value is a whole map).
type pending struct {
	messageID  string
	recipient  string
	registered time.Time
	timer      *time.Timer
}

// Stats summarizes tracker state.
type Stats struct {
	Pending int
}

// Tracker is the AckTracker component.
type Tracker struct {
	mu        sync.Mutex
	entries   map[string]*pending
	onTimeout func(messageID, recipient string)
	closed    bool
}

// New constructs a tracker. onTimeout, if non-nil, fires (outside the lock)
// when a pending ack's deadline elapses without Acknowledge being called.
func New(onTimeout func(messageID, recipient string)) *Tracker {
	return &Tracker{
		entries:   map[string]*pending{},
		onTimeout: onTimeout,
	}
}

// Register begins tracking messageID as awaiting acknowledgment from
// recipient, with a timeout deadline (spec §4.4 register_pending_ack).
func (t *Tracker) Register(messageID, recipient string, timeout time.Duration) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if existing, ok := t.entries[messageID]; ok {
		existing.timer.Stop()
	}
	p := &pending{messageID: messageID, recipient: recipient, registered: time.Now().UTC()}
	p.timer = time.AfterFunc(timeout, func() { t.fireTimeout(messageID) })
	t.entries[messageID] = p
	t.mu.Unlock()
}

func (t *Tracker) fireTimeout(messageID string) {
	t.mu.Lock()
	p, ok := t.entries[messageID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.entries, messageID)
	t.mu.Unlock()

	if t.onTimeout != nil {
		t.onTimeout(p.messageID, p.recipient)
	}
}

// Acknowledge resolves a pending ack. It returns ErrNotPending if no such
// id is tracked and ErrNotRecipient if acknowledger doesn't match the
// registered recipient — neither case is treated as fatal by callers, per
// spec §4.4's "stale or forged acks are rejected, not escalated" note.
func (t *Tracker) Acknowledge(messageID, acknowledger string) error {
	t.mu.Lock()
	p, ok := t.entries[messageID]
	if !ok {
		t.mu.Unlock()
		return ErrNotPending
	}
	if p.recipient != acknowledger {
		t.mu.Unlock()
		return ErrNotRecipient
	}
	delete(t.entries, messageID)
	t.mu.Unlock()

	p.timer.Stop()
	return nil
}

// IsPending reports whether messageID currently awaits acknowledgment.
func (t *Tracker) IsPending(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[messageID]
	return ok
}

// Pending returns the message ids currently awaiting acknowledgment.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.entries))
	for id := range t.entries {
		out = append(out, id)
	}
	return out
}

// Cancel stops tracking messageID without invoking onTimeout or returning
// an error — used when a message is superseded (e.g. moved to dead-letter)
// before either an ack or a timeout occurs.
func (t *Tracker) Cancel(messageID string) {
	t.mu.Lock()
	p, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()
	if ok {
		p.timer.Stop()
	}
}

// Stats reports the current pending count.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Pending: len(t.entries)}
}

// Clear cancels every pending ack without firing timeouts.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.entries {
		p.timer.Stop()
		delete(t.entries, id)
	}
}

// Close clears all pending acks and marks the tracker closed; further
// Register calls are dropped.
func (t *Tracker) Close() {
	t.Clear()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}
