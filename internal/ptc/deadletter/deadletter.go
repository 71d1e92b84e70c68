// Package deadletter is DeadLetter's business logic (spec §4.11),
// generalizing the teacher's internal/queue/dlq.go (a Redis-stream-backed
// DLQ) onto the SQL dead_letters table in internal/ptc/store. Retry is a
// distinct op from Resolve(id, "retried") per spec §4.11's state machine:
// retry bumps the dead letter's own retry_count and resurfaces a brand new
// messages row, but leaves the dead letter itself unresolved so it can be
// retried again (or resolved explicitly later).
package deadletter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/idgen"
	"github.com/maumercado/ptc/internal/ptc/message"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// Store is the subset of store.Store deadletter needs.
type Store interface {
	InsertDeadLetter(m *message.Message, errMsg string) (*store.DeadLetter, error)
	GetDeadLetter(id string) (*store.DeadLetter, error)
	ListDeadLetters(f store.ListDeadLettersFilter) ([]*store.DeadLetter, error)
	GetDueForRetry(limit int) ([]*store.DeadLetter, error)
	ResolveDeadLetter(id string, resolution store.Resolution) (bool, error)
	UpdateDeadLetterRetryCount(id string, retryCount int) error
	ScheduleDeadLetterRetry(id string, nextRetryAtMillis int64) error
	BatchResolveDeadLetters(ids []string, resolution store.Resolution) (int64, error)
	GetDeadLetterStats() (*store.DeadLetterStats, error)
	StoreOutgoing(m *message.Message) error
}

// Manager wires store.deadletters into the spec's DeadLetter operations.
type Manager struct {
	store Store
}

// New constructs a Manager.
func New(s Store) *Manager {
	return &Manager{store: s}
}

// Store records a message as dead-lettered, the terminal outcome when
// RetryHandler (C10) exhausts attempts (spec §4.11).
func (m *Manager) Store(msg *message.Message, errMsg string) (*store.DeadLetter, error) {
	dl, err := m.store.InsertDeadLetter(msg, errMsg)
	if err != nil {
		return nil, err
	}
	logger.Warn().Str("message_id", msg.ID).Str("dead_letter_id", dl.ID).Str("error", errMsg).Msg("message dead-lettered")
	return dl, nil
}

// List returns dead letters matching the filter.
func (m *Manager) List(f store.ListDeadLettersFilter) ([]*store.DeadLetter, error) {
	return m.store.ListDeadLetters(f)
}

// Get fetches a single dead letter.
func (m *Manager) Get(id string) (*store.DeadLetter, error) {
	return m.store.GetDeadLetter(id)
}

// Resolve marks a dead letter resolved without replaying it (the operator
// decided to skip or escalate it instead).
func (m *Manager) Resolve(id string, resolution store.Resolution) (bool, error) {
	return m.store.ResolveDeadLetter(id, resolution)
}

// Retry resurfaces a dead letter as a brand-new pending message and bumps
// the dead letter's retry_count, but leaves it unresolved (unresolved ->
// unresolved per spec §4.11's state machine) so it can be retried again if
// the new message also fails. Only Resolve(id, ResolutionRetried) is
// terminal.
func (m *Manager) Retry(id string) (*message.Message, error) {
	dl, err := m.store.GetDeadLetter(id)
	if err != nil {
		return nil, err
	}
	if dl.Resolved {
		return nil, fmt.Errorf("dead letter %s already resolved", id)
	}

	fresh := message.New(dl.Type, dl.Sender, dl.Recipient, json.RawMessage(dl.Content), dl.Importance, "")
	fresh.ID = idgen.NewMessageID(idgen.Options{Prefix: "msg", IncludeTimestamp: true})
	if err := m.store.StoreOutgoing(fresh); err != nil {
		return nil, fmt.Errorf("requeue dead letter %s: %w", id, err)
	}

	if err := m.store.UpdateDeadLetterRetryCount(id, dl.RetryCount+1); err != nil {
		return nil, fmt.Errorf("update dead letter retry count %s: %w", id, err)
	}

	logger.Info().Str("dead_letter_id", id).Str("new_message_id", fresh.ID).Msg("dead letter retried")
	return fresh, nil
}

// ScheduleRetry sets a future retry time on an unresolved dead letter
// without resolving it, for automatic periodic replay.
func (m *Manager) ScheduleRetry(id string, at time.Time) error {
	return m.store.ScheduleDeadLetterRetry(id, at.UnixMilli())
}

// DueForRetry returns dead letters whose scheduled retry time has arrived.
func (m *Manager) DueForRetry(limit int) ([]*store.DeadLetter, error) {
	return m.store.GetDueForRetry(limit)
}

// BatchResolve resolves many dead letters in one store transaction.
func (m *Manager) BatchResolve(ids []string, resolution store.Resolution) (int64, error) {
	return m.store.BatchResolveDeadLetters(ids, resolution)
}

// Stats summarizes dead letter counts.
func (m *Manager) Stats() (*store.DeadLetterStats, error) {
	return m.store.GetDeadLetterStats()
}

// Export returns a snapshot of dead letters, scoped by the same filter as
// List.
func (m *Manager) Export(f store.ListDeadLettersFilter) ([]*store.DeadLetter, error) {
	return m.store.ListDeadLetters(f)
}
