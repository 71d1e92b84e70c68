// Package heartbeat is HeartbeatManager (spec §4.6): one ticker goroutine
// per registered worker that periodically refreshes the worker's
// last_heartbeat row in the store. Adapted from the teacher's
// internal/worker/heartbeat.go ticker-loop shape, but writing through the
// SQL registry instead of a Redis TTL key.
package heartbeat

import (
	"sync"
	"time"

	"github.com/maumercado/ptc/internal/logger"
)

// Registry is the subset of store.Store that HeartbeatManager needs.
type Registry interface {
	Heartbeat(workerID string) error
}

// Status reports whether a given worker currently has an active heartbeat
// goroutine.
type Status struct {
	WorkerID string
	Running  bool
}

type entry struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Manager owns one heartbeat goroutine per worker.
type Manager struct {
	registry Registry
	interval time.Duration

	mu      sync.Mutex
	workers map[string]*entry
}

// New constructs a manager that sends a heartbeat every interval.
func New(registry Registry, interval time.Duration) *Manager {
	return &Manager{
		registry: registry,
		interval: interval,
		workers:  map[string]*entry{},
	}
}

// StartHeartbeat begins periodic heartbeats for workerID. Calling it again
// for an already-running worker is a no-op (spec §4.6 idempotence).
func (m *Manager) StartHeartbeat(workerID string) {
	m.mu.Lock()
	if _, exists := m.workers[workerID]; exists {
		m.mu.Unlock()
		return
	}
	e := &entry{stopCh: make(chan struct{})}
	m.workers[workerID] = e
	m.mu.Unlock()

	e.wg.Add(1)
	go m.loop(workerID, e)

	logger.Info().Str("worker_id", workerID).Dur("interval", m.interval).Msg("heartbeat started")
}

func (m *Manager) loop(workerID string, e *entry) {
	defer e.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.send(workerID)

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			m.send(workerID)
		}
	}
}

func (m *Manager) send(workerID string) {
	if err := m.registry.Heartbeat(workerID); err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("heartbeat failed")
	}
}

// StopHeartbeat stops the goroutine for workerID, if running.
func (m *Manager) StopHeartbeat(workerID string) {
	m.mu.Lock()
	e, exists := m.workers[workerID]
	if exists {
		delete(m.workers, workerID)
	}
	m.mu.Unlock()
	if !exists {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
	logger.Info().Str("worker_id", workerID).Msg("heartbeat stopped")
}

// StopAll stops every running heartbeat goroutine, used on coordinator
// shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.StopHeartbeat(id)
	}
}

// GetStatus reports the running heartbeats.
func (m *Manager) GetStatus() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.workers))
	for id := range m.workers {
		out = append(out, Status{WorkerID: id, Running: true})
	}
	return out
}
