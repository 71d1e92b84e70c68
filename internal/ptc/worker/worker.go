// Package worker holds the Worker record and its status enum (spec §3).
// The worker runtime lives in cmd/worker (claim loop) and internal/worker
// (executor).
package worker

// Status is a worker's liveness state.
type Status string

const (
	StatusActive  Status = "active"
	StatusStale   Status = "stale"
	StatusOffline Status = "offline"
)

func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusActive, StatusStale, StatusOffline:
		return Status(s)
	default:
		return StatusActive
	}
}

// Worker is the registry record for a worker process (spec §3).
type Worker struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	PID            int      `json:"pid"`
	Capabilities   []string `json:"capabilities"`
	Status         Status   `json:"status"`
	LastHeartbeat  int64    `json:"last_heartbeat"`
}
