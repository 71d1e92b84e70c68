package staledetector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/ptc/internal/ptc/worker"
)

type fakeRegistry struct {
	mu            sync.Mutex
	stale         []*worker.Worker
	findErr       error
	updateErr     error
	updatedStatus map[string]worker.Status
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{updatedStatus: map[string]worker.Status{}}
}

func (f *fakeRegistry) FindStaleWorkers(thresholdMillis int64) ([]*worker.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.stale, nil
}

func (f *fakeRegistry) UpdateWorkerStatus(id string, status worker.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedStatus[id] = status
	return nil
}

func TestDetector_Check_MarksStaleWorkers(t *testing.T) {
	reg := newFakeRegistry()
	reg.stale = []*worker.Worker{{ID: "w1"}, {ID: "w2"}}

	var mu sync.Mutex
	var notified []string
	d := New(reg, time.Hour, time.Minute, func(w *worker.Worker) {
		mu.Lock()
		notified = append(notified, w.ID)
		mu.Unlock()
	})

	d.Check()

	assert.Equal(t, worker.StatusStale, reg.updatedStatus["w1"])
	assert.Equal(t, worker.StatusStale, reg.updatedStatus["w2"])
	assert.ElementsMatch(t, []string{"w1", "w2"}, notified)
}

func TestDetector_Check_NoStaleWorkers_NoCallback(t *testing.T) {
	reg := newFakeRegistry()
	called := false
	d := New(reg, time.Hour, time.Minute, func(*worker.Worker) { called = true })

	d.Check()
	assert.False(t, called)
}

func TestDetector_Check_FindErrorDoesNotPanic(t *testing.T) {
	reg := newFakeRegistry()
	reg.findErr = errors.New("db down")
	d := New(reg, time.Hour, time.Minute, nil)

	assert.NotPanics(t, func() { d.Check() })
}

func TestDetector_Check_UpdateErrorSkipsCallback(t *testing.T) {
	reg := newFakeRegistry()
	reg.stale = []*worker.Worker{{ID: "w1"}}
	reg.updateErr = errors.New("update failed")

	called := false
	d := New(reg, time.Hour, time.Minute, func(*worker.Worker) { called = true })
	d.Check()

	assert.False(t, called)
}

func TestDetector_StartStop(t *testing.T) {
	reg := newFakeRegistry()
	d := New(reg, 5*time.Millisecond, time.Minute, nil)

	require.False(t, d.GetStatus().Running)
	d.Start()
	require.True(t, d.GetStatus().Running)

	time.Sleep(30 * time.Millisecond)
	d.Stop()
	require.False(t, d.GetStatus().Running)
}

func TestDetector_Start_IdempotentWhileRunning(t *testing.T) {
	reg := newFakeRegistry()
	d := New(reg, time.Hour, time.Minute, nil)
	d.Start()
	d.Start() // should not panic or deadlock
	d.Stop()
}

func TestDetector_GetStatus(t *testing.T) {
	reg := newFakeRegistry()
	d := New(reg, 10*time.Second, 90*time.Second, nil)
	status := d.GetStatus()
	assert.Equal(t, 10*time.Second, status.PollInterval)
	assert.Equal(t, 90*time.Second, status.StaleThreshold)
	assert.False(t, status.Running)
}
