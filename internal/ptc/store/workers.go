package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maumercado/ptc/internal/ptc/worker"
)

// ErrWorkerNotFound is returned when a lookup by id matches no row.
var ErrWorkerNotFound = errors.New("worker not found")

// RegisterWorker inserts or replaces a worker record (spec §4.5).
func (s *Store) RegisterWorker(w *worker.Worker) error {
	caps, err := json.Marshal(w.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO workers (id, name, pid, capabilities, status, last_heartbeat)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, pid = excluded.pid,
			capabilities = excluded.capabilities, status = excluded.status,
			last_heartbeat = excluded.last_heartbeat`,
		w.ID, w.Name, w.PID, string(caps), string(worker.StatusActive), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("register worker %s: %w", w.ID, err)
	}
	return nil
}

// UnregisterWorker transitions a worker to offline explicitly (spec §3).
func (s *Store) UnregisterWorker(id string) error {
	res, err := s.db.Exec(`UPDATE workers SET status = ? WHERE id = ?`, string(worker.StatusOffline), id)
	if err != nil {
		return fmt.Errorf("unregister worker %s: %w", id, err)
	}
	return requireWorkerRowAffected(res)
}

// Heartbeat atomically updates last_heartbeat and flips status back to
// active (spec §3: "stale -> active (heartbeat)").
func (s *Store) Heartbeat(id string) error {
	res, err := s.db.Exec(`UPDATE workers SET last_heartbeat = ?, status = ? WHERE id = ?`,
		nowMillis(), string(worker.StatusActive), id)
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", id, err)
	}
	return requireWorkerRowAffected(res)
}

// GetWorker fetches a worker by id.
func (s *Store) GetWorker(id string) (*worker.Worker, error) {
	row := s.db.QueryRow(`SELECT id, name, pid, capabilities, status, last_heartbeat FROM workers WHERE id = ?`, id)
	return scanWorker(row)
}

// ListWorkersFilter restricts ListWorkers to a status, when non-empty.
type ListWorkersFilter struct {
	Status worker.Status
}

// ListWorkers returns workers matching the filter (all, if zero-valued).
func (s *Store) ListWorkers(filter ListWorkersFilter) ([]*worker.Worker, error) {
	var rows *sql.Rows
	var err error
	if filter.Status != "" {
		rows, err = s.db.Query(`SELECT id, name, pid, capabilities, status, last_heartbeat FROM workers WHERE status = ? ORDER BY id`, string(filter.Status))
	} else {
		rows, err = s.db.Query(`SELECT id, name, pid, capabilities, status, last_heartbeat FROM workers ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*worker.Worker
	for rows.Next() {
		w, err := scanWorkerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// FindStaleWorkers scans for active workers whose heartbeat is older than
// thresholdMillis (spec §4.5). It does not itself mutate status; the caller
// (StaleDetector) decides whether and when to transition.
func (s *Store) FindStaleWorkers(thresholdMillis int64) ([]*worker.Worker, error) {
	cutoff := nowMillis() - thresholdMillis
	rows, err := s.db.Query(`SELECT id, name, pid, capabilities, status, last_heartbeat FROM workers WHERE status = ? AND last_heartbeat < ?`,
		string(worker.StatusActive), cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stale workers: %w", err)
	}
	defer rows.Close()

	var out []*worker.Worker
	for rows.Next() {
		w, err := scanWorkerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateWorkerStatus sets a worker's status explicitly (used by StaleDetector to
// transition active -> stale).
func (s *Store) UpdateWorkerStatus(id string, status worker.Status) error {
	res, err := s.db.Exec(`UPDATE workers SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update worker status %s: %w", id, err)
	}
	return requireWorkerRowAffected(res)
}

// WorkerStats summarizes worker counts per status.
type WorkerStats struct {
	CountByStatus map[string]int64 `json:"count_by_status"`
}

// GetWorkerStats returns counts per status.
func (s *Store) GetWorkerStats() (*WorkerStats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM workers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get worker stats: %w", err)
	}
	defer rows.Close()

	out := &WorkerStats{CountByStatus: map[string]int64{}}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out.CountByStatus[status] = count
	}
	return out, rows.Err()
}

func scanWorker(row *sql.Row) (*worker.Worker, error) {
	var w worker.Worker
	var caps, status string
	if err := row.Scan(&w.ID, &w.Name, &w.PID, &caps, &status, &w.LastHeartbeat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkerNotFound
		}
		return nil, fmt.Errorf("scan worker: %w", err)
	}
	_ = json.Unmarshal([]byte(caps), &w.Capabilities)
	w.Status = worker.ParseStatus(status)
	return &w, nil
}

func scanWorkerRow(rows *sql.Rows) (*worker.Worker, error) {
	var w worker.Worker
	var caps, status string
	if err := rows.Scan(&w.ID, &w.Name, &w.PID, &caps, &status, &w.LastHeartbeat); err != nil {
		return nil, fmt.Errorf("scan worker row: %w", err)
	}
	_ = json.Unmarshal([]byte(caps), &w.Capabilities)
	w.Status = worker.ParseStatus(status)
	return &w, nil
}

func requireWorkerRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWorkerNotFound
	}
	return nil
}
