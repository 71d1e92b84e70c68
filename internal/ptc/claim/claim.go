// Package claim is TaskClaim's business logic (spec §4.8): the algorithm
// around store.InsertClaim that enforces the per-worker task limit,
// consults an external ready-task source for the next candidate task id,
// and maintains the in-memory pending_claims cache the coordinator consults
// without round-tripping to SQLite on every lookup. The external-process
// invocation follows the teacher's os/exec-free but signal-aware process
// lifecycle idiom in cmd/worker/main.go, generalized to actually shell out.
package claim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// ErrNoReadyTasks is the sentinel returned when the ready-task source has
// no work, per spec §6's "no_ready_tasks" contract.
var ErrNoReadyTasks = errors.New("no_ready_tasks")

// ErrWorkerAtCapacity is returned when a worker already holds
// MaxTasksPerWorker active claims (spec §4.8 step 1).
var ErrWorkerAtCapacity = errors.New("worker at task capacity")

var taskIDPattern = regexp.MustCompile(`[A-Za-z0-9_]+-[A-Za-z0-9_-]+`)

// ReadyTaskSource invokes the external command that names the next
// candidate task id, per spec §6's ready-task-source contract: stdout is
// scanned for a "<namespace>-<token>" id, "No ready work" (or any other
// unparseable output) means no tasks are ready.
type ReadyTaskSource struct {
	Command string
	Args    []string
}

// Next runs the command once and returns the next candidate task id, or
// ErrNoReadyTasks if none is available.
func (s ReadyTaskSource) Next(ctx context.Context) (string, error) {
	if s.Command == "" {
		return "", ErrNoReadyTasks
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ready task source: %w", err)
	}

	text := strings.TrimSpace(out.String())
	if text == "" || strings.Contains(text, "No ready work") {
		return "", ErrNoReadyTasks
	}

	id := taskIDPattern.FindString(text)
	if id == "" {
		return "", ErrNoReadyTasks
	}
	return id, nil
}

// Store is the subset of store.Store Claim needs.
type Store interface {
	InsertClaim(taskID, workerID string, metadata map[string]interface{}) (*store.TaskClaim, error)
	CompleteClaim(taskID, workerID string) error
	DeleteClaim(taskID string) error
	GetWorkerClaims(workerID string) ([]*store.TaskClaim, error)
	ListActiveClaims() ([]*store.TaskClaim, error)
}

// Manager implements the TaskClaim algorithm.
type Manager struct {
	store             Store
	source            ReadyTaskSource
	maxTasksPerWorker int

	mu      sync.Mutex
	pending map[string]*store.TaskClaim // task_id -> claim, populated at Initialize
}

// New constructs a Manager.
func New(s Store, source ReadyTaskSource, maxTasksPerWorker int) *Manager {
	return &Manager{
		store:             s,
		source:            source,
		maxTasksPerWorker: maxTasksPerWorker,
		pending:           map[string]*store.TaskClaim{},
	}
}

// Initialize loads every active claim from the store into the in-memory
// cache, run once at coordinator startup so a restart doesn't forget which
// tasks are already spoken for (spec §4.8).
func (m *Manager) Initialize() error {
	claims, err := m.store.ListActiveClaims()
	if err != nil {
		return fmt.Errorf("initialize claim cache: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range claims {
		m.pending[c.TaskID] = c
	}
	return nil
}

// Claim runs the full spec §4.8 algorithm for workerID: enforce the
// per-worker task limit, ask the ready-task source for the next candidate,
// then attempt the atomic store-level claim. A race lost to another worker
// is not escalated to the caller as an error condition beyond the sentinel
// — per spec §8, only one caller may ever observe success for a given
// task_id, and losing the race is an expected outcome, not a failure.
func (m *Manager) Claim(ctx context.Context, workerID string, metadata map[string]interface{}) (*store.TaskClaim, error) {
	active, err := m.store.GetWorkerClaims(workerID)
	if err != nil {
		return nil, fmt.Errorf("check worker capacity: %w", err)
	}
	if m.maxTasksPerWorker > 0 && len(active) >= m.maxTasksPerWorker {
		return nil, ErrWorkerAtCapacity
	}

	taskID, err := m.source.Next(ctx)
	if err != nil {
		return nil, err
	}

	claim, err := m.store.InsertClaim(taskID, workerID, metadata)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) || errors.Is(err, store.ErrClaimRaceCondition) {
			logger.Debug().Str("task_id", taskID).Str("worker_id", workerID).Msg("claim lost race")
			return nil, err
		}
		return nil, fmt.Errorf("claim task %s: %w", taskID, err)
	}

	m.mu.Lock()
	m.pending[taskID] = claim
	m.mu.Unlock()

	logger.Info().Str("task_id", taskID).Str("worker_id", workerID).Msg("task claimed")
	return claim, nil
}

// Release completes a claim (the claiming worker finished the task) and
// drops it from the cache.
func (m *Manager) Release(taskID, workerID string) error {
	if err := m.store.CompleteClaim(taskID, workerID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.pending, taskID)
	m.mu.Unlock()
	return nil
}

// MarkForReassignment deletes a claim outright (rather than completing it)
// so the ready-task source can resurface task_id for a different worker
// (spec §4.8/§4.9).
func (m *Manager) MarkForReassignment(taskID string) error {
	if err := m.store.DeleteClaim(taskID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.pending, taskID)
	m.mu.Unlock()
	return nil
}

// GetWorkerClaims returns the active claims for a worker.
func (m *Manager) GetWorkerClaims(workerID string) ([]*store.TaskClaim, error) {
	return m.store.GetWorkerClaims(workerID)
}

// GetAbandonedTasks returns every cached claim owned by one of the given
// (now-stale or offline) worker ids, for the reassignment pass to act on.
func (m *Manager) GetAbandonedTasks(staleWorkerIDs []string) []*store.TaskClaim {
	stale := make(map[string]bool, len(staleWorkerIDs))
	for _, id := range staleWorkerIDs {
		stale[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.TaskClaim
	for _, c := range m.pending {
		if stale[c.WorkerID] {
			out = append(out, c)
		}
	}
	return out
}
