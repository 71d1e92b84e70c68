package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/ptc/internal/ptc/message"
)

func TestStore_InsertDeadLetter_AndGet(t *testing.T) {
	s := openTestStore(t)
	m := newTestMessage("msg-1", "a", "b")
	m.RetryCount = 3

	dl, err := s.InsertDeadLetter(m, "exhausted retries")
	require.NoError(t, err)
	assert.Equal(t, "dl-msg-1", dl.ID)

	got, err := s.GetDeadLetter("dl-msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.OriginalMessageID)
	assert.Equal(t, "exhausted retries", got.Error)
	assert.Equal(t, 3, got.RetryCount)
	assert.False(t, got.Resolved)
}

func TestStore_GetDeadLetter_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetDeadLetter("missing")
	assert.ErrorIs(t, err, ErrDeadLetterNotFound)
}

func TestStore_ListDeadLetters_UnresolvedOnly(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)
	_, err = s.InsertDeadLetter(newTestMessage("msg-2", "a", "b"), "err2")
	require.NoError(t, err)
	_, err = s.ResolveDeadLetter("dl-msg-2", ResolutionSkipped)
	require.NoError(t, err)

	unresolved, err := s.ListDeadLetters(ListDeadLettersFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "dl-msg-1", unresolved[0].ID)

	all, err := s.ListDeadLetters(ListDeadLettersFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_ListDeadLetters_FiltersBySender(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "alice", "b"), "err1")
	require.NoError(t, err)
	_, err = s.InsertDeadLetter(newTestMessage("msg-2", "bob", "b"), "err2")
	require.NoError(t, err)

	rows, err := s.ListDeadLetters(ListDeadLettersFilter{Sender: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "dl-msg-1", rows[0].ID)
}

func TestStore_ResolveDeadLetter_SecondCallIsNoop(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)

	ok, err := s.ResolveDeadLetter("dl-msg-1", ResolutionRetried)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ResolveDeadLetter("dl-msg-1", ResolutionRetried)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GetDueForRetry_NullNextRetryIsDue(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)

	due, err := s.GetDueForRetry(10)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestStore_ScheduleDeadLetterRetry_DelaysDueness(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)

	farFuture := nowMillis() + 1000*60*60
	require.NoError(t, s.ScheduleDeadLetterRetry("dl-msg-1", farFuture))

	due, err := s.GetDueForRetry(10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStore_ScheduleDeadLetterRetry_NotFoundWhenAlreadyResolved(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)
	_, err = s.ResolveDeadLetter("dl-msg-1", ResolutionSkipped)
	require.NoError(t, err)

	err = s.ScheduleDeadLetterRetry("dl-msg-1", nowMillis()+1000)
	assert.ErrorIs(t, err, ErrDeadLetterNotFound)
}

func TestStore_UpdateDeadLetterRetryCount(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateDeadLetterRetryCount("dl-msg-1", 5))

	got, err := s.GetDeadLetter("dl-msg-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.RetryCount)
}

func TestStore_BatchResolveDeadLetters(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)
	_, err = s.InsertDeadLetter(newTestMessage("msg-2", "a", "b"), "err2")
	require.NoError(t, err)

	n, err := s.BatchResolveDeadLetters([]string{"dl-msg-1", "dl-msg-2", "dl-missing"}, ResolutionEscalated)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_GetDeadLetterStats(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertDeadLetter(newTestMessage("msg-1", "a", "b"), "err1")
	require.NoError(t, err)
	_, err = s.InsertDeadLetter(newTestMessage("msg-2", "a", "b"), "err2")
	require.NoError(t, err)
	_, err = s.ResolveDeadLetter("dl-msg-1", ResolutionSkipped)
	require.NoError(t, err)

	stats, err := s.GetDeadLetterStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Resolved)
	assert.Equal(t, int64(1), stats.Unresolved)
}

func TestStore_DeadLetter_MarshalJSON_RendersImportanceLabel(t *testing.T) {
	m := newTestMessage("msg-1", "a", "b")
	m.Importance = message.ImportanceHigh
	s := openTestStore(t)
	dl, err := s.InsertDeadLetter(m, "err1")
	require.NoError(t, err)

	b, err := dl.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"importance":"high"`)
}
