package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/ptc/internal/ptc/worker"
)

func newTestWorker(id string) *worker.Worker {
	return &worker.Worker{ID: id, Name: id, PID: 1234, Capabilities: []string{"default"}}
}

func TestStore_RegisterWorker_AndGet(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusActive, got.Status)
	assert.Equal(t, []string{"default"}, got.Capabilities)
}

func TestStore_RegisterWorker_UpsertsOnConflict(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))

	again := newTestWorker("w1")
	again.PID = 9999
	require.NoError(t, s.RegisterWorker(again))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, 9999, got.PID)
}

func TestStore_GetWorker_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetWorker("missing")
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestStore_UnregisterWorker(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))
	require.NoError(t, s.UnregisterWorker("w1"))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusOffline, got.Status)
}

func TestStore_UnregisterWorker_NotFound(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.UnregisterWorker("missing"), ErrWorkerNotFound)
}

func TestStore_Heartbeat_RevivesStaleWorker(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))
	require.NoError(t, s.UpdateWorkerStatus("w1", worker.StatusStale))

	require.NoError(t, s.Heartbeat("w1"))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusActive, got.Status)
}

func TestStore_Heartbeat_NotFound(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.Heartbeat("missing"), ErrWorkerNotFound)
}

func TestStore_ListWorkers_FiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))
	require.NoError(t, s.RegisterWorker(newTestWorker("w2")))
	require.NoError(t, s.UpdateWorkerStatus("w2", worker.StatusOffline))

	active, err := s.ListWorkers(ListWorkersFilter{Status: worker.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "w1", active[0].ID)

	all, err := s.ListWorkers(ListWorkersFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_FindStaleWorkers_OnlyActiveAndOld(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))
	require.NoError(t, s.RegisterWorker(newTestWorker("w2")))
	require.NoError(t, s.UpdateWorkerStatus("w2", worker.StatusOffline))

	stale, err := s.FindStaleWorkers(-1000)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "w1", stale[0].ID)
}

func TestStore_UpdateWorkerStatus_NotFound(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.UpdateWorkerStatus("missing", worker.StatusStale), ErrWorkerNotFound)
}

func TestStore_GetWorkerStats(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RegisterWorker(newTestWorker("w1")))
	require.NoError(t, s.RegisterWorker(newTestWorker("w2")))
	require.NoError(t, s.UpdateWorkerStatus("w2", worker.StatusOffline))

	stats, err := s.GetWorkerStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CountByStatus[string(worker.StatusActive)])
	assert.Equal(t, int64(1), stats.CountByStatus[string(worker.StatusOffline)])
}
