package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{calls: map[string]int{}}
}

func (f *fakeRegistry) Heartbeat(workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[workerID]++
	return nil
}

func (f *fakeRegistry) count(workerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[workerID]
}

func TestManager_StartHeartbeat_SendsImmediatelyAndRepeatedly(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, 10*time.Millisecond)

	m.StartHeartbeat("worker-1")
	defer m.StopAll()

	assert.Eventually(t, func() bool { return reg.count("worker-1") >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return reg.count("worker-1") >= 3 }, time.Second, time.Millisecond)
}

func TestManager_StartHeartbeat_IdempotentForSameWorker(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, time.Hour)

	m.StartHeartbeat("worker-1")
	m.StartHeartbeat("worker-1")
	defer m.StopAll()

	status := m.GetStatus()
	assert.Len(t, status, 1)
}

func TestManager_StopHeartbeat(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, 5*time.Millisecond)

	m.StartHeartbeat("worker-1")
	assert.Eventually(t, func() bool { return reg.count("worker-1") >= 1 }, time.Second, time.Millisecond)

	m.StopHeartbeat("worker-1")
	countAfterStop := reg.count("worker-1")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, countAfterStop, reg.count("worker-1"))
}

func TestManager_StopHeartbeat_UnknownWorkerIsNoop(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, time.Hour)
	assert.NotPanics(t, func() { m.StopHeartbeat("never-started") })
}

func TestManager_StopAll(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, 5*time.Millisecond)

	m.StartHeartbeat("w1")
	m.StartHeartbeat("w2")
	m.StopAll()

	assert.Empty(t, m.GetStatus())
}

func TestManager_GetStatus(t *testing.T) {
	reg := newFakeRegistry()
	m := New(reg, time.Hour)
	m.StartHeartbeat("w1")
	defer m.StopAll()

	status := m.GetStatus()
	assert.Len(t, status, 1)
	assert.Equal(t, "w1", status[0].WorkerID)
	assert.True(t, status[0].Running)
}
