package acktracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RegisterAndAcknowledge(t *testing.T) {
	tr := New(nil)
	tr.Register("msg-1", "worker-1", time.Second)

	assert.True(t, tr.IsPending("msg-1"))
	require.NoError(t, tr.Acknowledge("msg-1", "worker-1"))
	assert.False(t, tr.IsPending("msg-1"))
}

func TestTracker_Acknowledge_NotPending(t *testing.T) {
	tr := New(nil)
	err := tr.Acknowledge("missing", "worker-1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestTracker_Acknowledge_WrongRecipient(t *testing.T) {
	tr := New(nil)
	tr.Register("msg-1", "worker-1", time.Second)

	err := tr.Acknowledge("msg-1", "worker-2")
	assert.ErrorIs(t, err, ErrNotRecipient)
	assert.True(t, tr.IsPending("msg-1"), "rejected ack must not clear the pending entry")
}

func TestTracker_Timeout_FiresCallback(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var gotID, gotRecipient string

	tr := New(func(messageID, recipient string) {
		gotID, gotRecipient = messageID, recipient
		wg.Done()
	})
	tr.Register("msg-1", "worker-1", 10*time.Millisecond)

	waitWithTimeout(t, &wg, time.Second)
	assert.Equal(t, "msg-1", gotID)
	assert.Equal(t, "worker-1", gotRecipient)
	assert.False(t, tr.IsPending("msg-1"))
}

func TestTracker_Acknowledge_AfterTimeoutIsNotPending(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	tr := New(func(string, string) { wg.Done() })
	tr.Register("msg-1", "worker-1", 10*time.Millisecond)
	waitWithTimeout(t, &wg, time.Second)

	err := tr.Acknowledge("msg-1", "worker-1")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestTracker_Cancel(t *testing.T) {
	tr := New(func(string, string) { t.Fatal("onTimeout should not fire after Cancel") })
	tr.Register("msg-1", "worker-1", 5*time.Millisecond)
	tr.Cancel("msg-1")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, tr.IsPending("msg-1"))
}

func TestTracker_Register_ReplacesExistingTimer(t *testing.T) {
	calls := 0
	tr := New(func(string, string) { calls++ })
	tr.Register("msg-1", "worker-1", 5*time.Millisecond)
	tr.Register("msg-1", "worker-1", time.Hour)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, calls)
	assert.True(t, tr.IsPending("msg-1"))
}

func TestTracker_Pending(t *testing.T) {
	tr := New(nil)
	tr.Register("a", "w1", time.Minute)
	tr.Register("b", "w2", time.Minute)

	assert.ElementsMatch(t, []string{"a", "b"}, tr.Pending())
}

func TestTracker_Stats(t *testing.T) {
	tr := New(nil)
	assert.Equal(t, Stats{Pending: 0}, tr.Stats())
	tr.Register("a", "w1", time.Minute)
	assert.Equal(t, Stats{Pending: 1}, tr.Stats())
}

func TestTracker_Clear(t *testing.T) {
	tr := New(func(string, string) { t.Fatal("onTimeout should not fire after Clear") })
	tr.Register("a", "w1", 5*time.Millisecond)
	tr.Register("b", "w2", 5*time.Millisecond)
	tr.Clear()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Stats{Pending: 0}, tr.Stats())
}

func TestTracker_Close_RejectsFurtherRegister(t *testing.T) {
	tr := New(nil)
	tr.Close()
	tr.Register("a", "w1", time.Minute)
	assert.False(t, tr.IsPending("a"))
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for callback")
	}
}
