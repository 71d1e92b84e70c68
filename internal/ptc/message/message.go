// Package message defines the Message record PTC components pass around:
// the payload, its priority tag, and its delivery lifecycle.
package message

import (
	"encoding/json"
	"time"
)

// Importance is the priority tag a message is enqueued with. It mirrors the
// teacher's task.Priority enum but keeps the spec's own ordering and names.
type Importance int

const (
	ImportanceCritical Importance = iota
	ImportanceHigh
	ImportanceNormal
	ImportanceLow
)

func (i Importance) String() string {
	switch i {
	case ImportanceCritical:
		return "critical"
	case ImportanceHigh:
		return "high"
	case ImportanceNormal:
		return "normal"
	case ImportanceLow:
		return "low"
	default:
		return "normal"
	}
}

// ParseImportance maps a string to an Importance. Unknown values map to
// normal, per spec §4.1: "Mapping from importance string to priority is
// total; unknown values map to NORMAL."
func ParseImportance(s string) Importance {
	switch s {
	case "critical":
		return ImportanceCritical
	case "high":
		return ImportanceHigh
	case "normal":
		return ImportanceNormal
	case "low":
		return ImportanceLow
	default:
		return ImportanceNormal
	}
}

// Status is the delivery lifecycle state of a message (spec §3).
type Status string

const (
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
	StatusDeadLetter   Status = "dead_letter"
)

// IsTerminal reports whether a status is terminal (acknowledged, dead_letter).
func (s Status) IsTerminal() bool {
	return s == StatusAcknowledged || s == StatusDeadLetter
}

// ParseStatus maps a string to a Status, defaulting to pending for unknown
// input (keeps read paths total, matching the teacher's ParseState idiom).
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusDelivered, StatusAcknowledged, StatusFailed, StatusDeadLetter:
		return Status(s)
	default:
		return StatusPending
	}
}

const Version = "1.0"

// Message is the wire/storage representation from spec §3 and §6. Payload is
// opaque and round-tripped byte for byte through json.RawMessage, matching
// spec §6's "payload MUST be round-tripped byte-for-byte" requirement.
type Message struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Version         string          `json:"version"`
	Timestamp       int64           `json:"timestamp"`
	Sender          string          `json:"sender"`
	Recipient       string          `json:"recipient"`
	Importance      Importance      `json:"-"`
	ImportanceLabel string          `json:"importance"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
	RetryCount      int             `json:"retry_count"`
	Status          Status          `json:"status"`

	// Extra carries unknown top-level fields encountered on read, so they
	// round-trip even though this type doesn't model them (spec §6: "Unknown
	// top-level fields are preserved on read").
	Extra map[string]json.RawMessage `json:"-"`
}

// New constructs a canonical pending message. It does not persist or enqueue
// it — that is the coordinator facade's job (spec §4.12, create_message).
func New(msgType, sender, recipient string, payload json.RawMessage, importance Importance, correlationID string) *Message {
	return &Message{
		ID:              "",
		Type:            msgType,
		Version:         Version,
		Timestamp:       time.Now().UTC().UnixMilli(),
		Sender:          sender,
		Recipient:       recipient,
		Importance:      importance,
		ImportanceLabel: importance.String(),
		Payload:         payload,
		CorrelationID:   correlationID,
		RetryCount:      0,
		Status:          StatusPending,
	}
}

// MarshalJSON preserves any unrecognized top-level fields captured in Extra.
func (m *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	base, err := json.Marshal((*alias)(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}

	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON captures unknown top-level fields into Extra for round-trip.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Message(a)
	m.Importance = ParseImportance(m.ImportanceLabel)

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"id": true, "type": true, "version": true, "timestamp": true,
		"sender": true, "recipient": true, "importance": true, "payload": true,
		"correlation_id": true, "retry_count": true, "status": true,
	}
	for k, v := range raw {
		if !known[k] {
			if m.Extra == nil {
				m.Extra = map[string]json.RawMessage{}
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// ToJSON serializes the message.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes a message.
func FromJSON(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CanRetry reports whether retry_count has room under maxAttempts.
func (m *Message) CanRetry(maxAttempts int) bool {
	return m.RetryCount < maxAttempts
}
