// Package staledetector is StaleDetector (spec §4.7): a ticker-driven poll
// that finds workers whose heartbeat has gone quiet longer than the stale
// threshold and transitions them to stale, in the teacher's Scheduler
// ticker idiom (internal/queue/scheduler.go).
package staledetector

import (
	"sync"
	"time"

	"github.com/maumercado/ptc/internal/logger"
	"github.com/maumercado/ptc/internal/ptc/worker"
)

// Registry is the subset of store.Store StaleDetector needs.
type Registry interface {
	FindStaleWorkers(thresholdMillis int64) ([]*worker.Worker, error)
	UpdateWorkerStatus(id string, status worker.Status) error
}

// Status reports whether the detector's poll loop is running.
type Status struct {
	Running       bool
	PollInterval  time.Duration
	StaleThreshold time.Duration
}

// Detector polls the registry for stale workers.
type Detector struct {
	registry  Registry
	poll      time.Duration
	threshold time.Duration
	onStale   func(*worker.Worker)

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New constructs a detector. onStale, if non-nil, is invoked for each
// worker transitioned to stale, to drive reassignment (C9) and event
// broadcast.
func New(registry Registry, poll, threshold time.Duration, onStale func(*worker.Worker)) *Detector {
	return &Detector{
		registry:  registry,
		poll:      poll,
		threshold: threshold,
		onStale:   onStale,
	}
}

// Start begins the poll loop. Calling it while already running is a no-op.
func (d *Detector) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop()

	logger.Info().Dur("poll_interval", d.poll).Dur("stale_threshold", d.threshold).Msg("stale detector started")
}

// Stop halts the poll loop and waits for it to exit.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	close(d.stopCh)
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	logger.Info().Msg("stale detector stopped")
}

func (d *Detector) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.Check()
		}
	}
}

// Check runs one detection pass immediately, independent of the ticker —
// the poll loop calls it on each tick, and tests call it directly.
func (d *Detector) Check() {
	stale, err := d.registry.FindStaleWorkers(d.threshold.Milliseconds())
	if err != nil {
		logger.Error().Err(err).Msg("find stale workers failed")
		return
	}
	for _, w := range stale {
		if err := d.registry.UpdateWorkerStatus(w.ID, worker.StatusStale); err != nil {
			logger.Error().Err(err).Str("worker_id", w.ID).Msg("mark worker stale failed")
			continue
		}
		logger.Warn().Str("worker_id", w.ID).Msg("worker marked stale")
		if d.onStale != nil {
			d.onStale(w)
		}
	}
}

// GetStatus reports the detector's running configuration.
func (d *Detector) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{Running: d.running, PollInterval: d.poll, StaleThreshold: d.threshold}
}
