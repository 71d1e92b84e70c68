package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageID_RoundTripsPrefix(t *testing.T) {
	id := NewMessageID(Options{Prefix: "msg", IncludeTimestamp: true})
	parsed := Parse(id)
	assert.Equal(t, "msg", parsed.Prefix)
	assert.True(t, parsed.HasTime)
	assert.NotEmpty(t, parsed.Random)
}

func TestNewMessageID_NoPrefix(t *testing.T) {
	id := NewMessageID(Options{})
	assert.NotEmpty(t, id)
	assert.False(t, Parse(id).HasTime == true && Parse(id).Prefix != "")
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID(Options{Prefix: "m"})
		assert.False(t, seen[id], "id collision: %s", id)
		seen[id] = true
	}
}

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()
	assert.Regexp(t, `^corr-[0-9a-z]+-[0-9a-z]{7,}$`, id)
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"", false},
		{"not_an_id", false},
		{"dl-msg-abc-def", true},
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"corr-kx0f1-abcdefg", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValid(tt.id), "id=%q", tt.id)
	}
}
