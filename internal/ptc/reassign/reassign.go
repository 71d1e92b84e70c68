// Package reassign is Reassignment (spec §4.9): when a worker goes stale or
// a claim is explicitly released, its in-flight tasks are freed so another
// worker can claim them. Modeled on the teacher's
// internal/worker/pool.go recoverOrphanedTasks, which reclaimed tasks from
// crashed workers and put them back in the queue.
package reassign

import (
	"fmt"
	"sync"
	"time"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// ClaimStore is the subset of store.Store Reassignment needs.
type ClaimStore interface {
	GetWorkerClaims(workerID string) ([]*store.TaskClaim, error)
	DeleteClaim(taskID string) error
}

// Event records one completed reassignment for the in-memory history ring
// (spec §4.9's "reassignment history" requirement).
type Event struct {
	TaskID       string
	FromWorker   string
	Reason       string
	ReassignedAt time.Time
}

// Stats summarizes reassignment activity.
type Stats struct {
	Total        int
	ByReason     map[string]int
}

const historyCap = 1000

// Reassigner tracks reassignment history and drives the release-then-
// resurface mechanism over the claim store.
type Reassigner struct {
	mu      sync.Mutex
	history []Event
}

// New constructs a Reassigner.
func New() *Reassigner {
	return &Reassigner{}
}

// ReassignFromWorker releases every active claim held by workerID (e.g.
// because it was just marked stale) so the ready-task source can resurface
// those task ids for another worker to claim (spec §4.9).
func (r *Reassigner) ReassignFromWorker(claimStore ClaimStore, workerID, reason string) ([]string, error) {
	claims, err := claimStore.GetWorkerClaims(workerID)
	if err != nil {
		return nil, fmt.Errorf("get claims for worker %s: %w", workerID, err)
	}

	var reassigned []string
	for _, c := range claims {
		if err := claimStore.DeleteClaim(c.TaskID); err != nil {
			logger.Error().Err(err).Str("task_id", c.TaskID).Str("worker_id", workerID).Msg("reassign: delete claim failed")
			continue
		}
		r.record(Event{TaskID: c.TaskID, FromWorker: workerID, Reason: reason, ReassignedAt: time.Now().UTC()})
		reassigned = append(reassigned, c.TaskID)
	}

	logger.Info().Str("worker_id", workerID).Int("count", len(reassigned)).Str("reason", reason).Msg("worker tasks reassigned")
	return reassigned, nil
}

// ReassignTask releases a single claim, e.g. an operator-driven
// mark_for_reassignment call.
func (r *Reassigner) ReassignTask(claimStore ClaimStore, taskID, fromWorker, reason string) error {
	if err := claimStore.DeleteClaim(taskID); err != nil {
		return fmt.Errorf("reassign task %s: %w", taskID, err)
	}
	r.record(Event{TaskID: taskID, FromWorker: fromWorker, Reason: reason, ReassignedAt: time.Now().UTC()})
	return nil
}

func (r *Reassigner) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, e)
	if len(r.history) > historyCap {
		r.history = r.history[len(r.history)-historyCap:]
	}
}

// GetHistory returns a snapshot of the reassignment history, most recent
// last.
func (r *Reassigner) GetHistory() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.history))
	copy(out, r.history)
	return out
}

// GetStats summarizes the history by reason.
func (r *Reassigner) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{Total: len(r.history), ByReason: map[string]int{}}
	for _, e := range r.history {
		stats.ByReason[e.Reason]++
	}
	return stats
}
