package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseImportance(t *testing.T) {
	tests := []struct {
		in       string
		expected Importance
	}{
		{"critical", ImportanceCritical},
		{"high", ImportanceHigh},
		{"normal", ImportanceNormal},
		{"low", ImportanceLow},
		{"urgent", ImportanceNormal},
		{"", ImportanceNormal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseImportance(tt.in), "input=%q", tt.in)
	}
}

func TestImportance_String(t *testing.T) {
	assert.Equal(t, "critical", ImportanceCritical.String())
	assert.Equal(t, "high", ImportanceHigh.String())
	assert.Equal(t, "normal", ImportanceNormal.String())
	assert.Equal(t, "low", ImportanceLow.String())
	assert.Equal(t, "normal", Importance(99).String())
}

func TestParseStatus_UnknownDefaultsToPending(t *testing.T) {
	assert.Equal(t, StatusPending, ParseStatus("bogus"))
	assert.Equal(t, StatusAcknowledged, ParseStatus("acknowledged"))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusAcknowledged.IsTerminal())
	assert.True(t, StatusDeadLetter.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
}

func TestNew(t *testing.T) {
	payload := json.RawMessage(`{"a":1}`)
	m := New("email", "svc-a", "worker-1", payload, ImportanceHigh, "corr-1")

	assert.Equal(t, "email", m.Type)
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, "svc-a", m.Sender)
	assert.Equal(t, "worker-1", m.Recipient)
	assert.Equal(t, ImportanceHigh, m.Importance)
	assert.Equal(t, "high", m.ImportanceLabel)
	assert.Equal(t, payload, m.Payload)
	assert.Equal(t, "corr-1", m.CorrelationID)
	assert.Equal(t, 0, m.RetryCount)
	assert.Equal(t, StatusPending, m.Status)
	assert.NotZero(t, m.Timestamp)
}

func TestMessage_JSONRoundTrip_PayloadBytesPreserved(t *testing.T) {
	payload := json.RawMessage(`{"nested":{"x":[1,2,3]},"s":"hello"}`)
	m := New("work", "a", "b", payload, ImportanceLow, "")
	m.ID = "msg-abc"

	data, err := m.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, m.ID, back.ID)
	assert.Equal(t, m.Importance, back.Importance)
	assert.JSONEq(t, string(payload), string(back.Payload))
}

func TestMessage_UnmarshalJSON_PreservesUnknownFields(t *testing.T) {
	raw := `{
		"id": "msg-1",
		"type": "work",
		"version": "1.0",
		"timestamp": 100,
		"sender": "a",
		"recipient": "b",
		"importance": "normal",
		"payload": {},
		"retry_count": 0,
		"status": "pending",
		"future_field": "keep-me"
	}`

	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Contains(t, m.Extra, "future_field")

	out, err := m.ToJSON()
	require.NoError(t, err)

	var roundTripped map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, "keep-me", roundTripped["future_field"])
}

func TestMessage_CanRetry(t *testing.T) {
	m := &Message{RetryCount: 2}
	assert.True(t, m.CanRetry(3))
	assert.False(t, m.CanRetry(2))
	assert.False(t, m.CanRetry(1))
}
