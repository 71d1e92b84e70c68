package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/ptc/internal/ptc/message"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ptc-test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMessage(id, sender, recipient string) *message.Message {
	m := message.New("task.run", sender, recipient, []byte(`{"k":"v"}`), message.ImportanceNormal, "")
	m.ID = id
	return m
}

func TestStore_StoreOutgoing_AndGet(t *testing.T) {
	s := openTestStore(t)
	m := newTestMessage("msg-1", "worker-a", "worker-b")
	require.NoError(t, s.StoreOutgoing(m))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", got.Sender)
	assert.Equal(t, "worker-b", got.Recipient)
	assert.Equal(t, message.StatusPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestStore_Get_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestStore_MarkDelivered(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.MarkDelivered("msg-1"))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, message.StatusDelivered, got.Status)
}

func TestStore_MarkDelivered_NotFound(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.MarkDelivered("missing"), ErrMessageNotFound)
}

func TestStore_Acknowledge_CorrectRecipient(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))

	ok, err := s.Acknowledge("msg-1", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, message.StatusAcknowledged, got.Status)
}

func TestStore_Acknowledge_WrongRecipientIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))

	ok, err := s.Acknowledge("msg-1", "someone-else")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, message.StatusPending, got.Status)
}

func TestStore_MarkFailed_IncrementsRetryCount(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))

	require.NoError(t, s.MarkFailed("msg-1", "boom"))
	require.NoError(t, s.MarkFailed("msg-1", "boom again"))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, message.StatusFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)
}

func TestStore_MarkDeadLetter(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.MarkDeadLetter("msg-1", "exhausted"))

	got, err := s.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, message.StatusDeadLetter, got.Status)
}

func TestStore_GetByStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-2", "a", "b")))
	require.NoError(t, s.MarkDelivered("msg-2"))

	pending, err := s.GetByStatus(message.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-1", pending[0].ID)
}

func TestStore_GetBySenderAndRecipient(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "alice", "bob")))
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-2", "alice", "carol")))

	bySender, err := s.GetBySender("alice", 10)
	require.NoError(t, err)
	assert.Len(t, bySender, 2)

	byRecipient, err := s.GetByRecipient("bob", 10)
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, "msg-1", byRecipient[0].ID)
}

func TestStore_GetByCorrelation(t *testing.T) {
	s := openTestStore(t)
	m1 := message.New("task.run", "a", "b", nil, message.ImportanceNormal, "corr-1")
	m1.ID = "msg-1"
	m2 := message.New("task.run", "b", "a", nil, message.ImportanceNormal, "corr-1")
	m2.ID = "msg-2"
	require.NoError(t, s.StoreOutgoing(m1))
	require.NoError(t, s.StoreOutgoing(m2))

	chain, err := s.GetByCorrelation("corr-1")
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestStore_GetPendingForRetry_RespectsMaxAttempts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.MarkFailed("msg-1", "boom"))
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-2", "a", "b")))
	require.NoError(t, s.MarkFailed("msg-2", "boom"))
	require.NoError(t, s.MarkFailed("msg-2", "boom"))
	require.NoError(t, s.MarkFailed("msg-2", "boom"))

	pending, err := s.GetPendingForRetry(3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "msg-1", pending[0].ID)
}

func TestStore_GetStats(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.MarkDelivered("msg-1"))
	_, err := s.Acknowledge("msg-1", "b")
	require.NoError(t, err)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CountByStatus[string(message.StatusAcknowledged)])
}

func TestStore_Cleanup_DeletesOnlyTerminalOldRows(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-1", "a", "b")))
	require.NoError(t, s.StoreOutgoing(newTestMessage("msg-2", "a", "b")))
	_, err := s.Acknowledge("msg-2", "b")
	require.NoError(t, err)

	n, err := s.Cleanup(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get("msg-1")
	require.NoError(t, err)
	_, err = s.Get("msg-2")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
