package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyClaimed means a task_claims row already exists for this task_id,
// in any status, including completed (spec §4.8 step 4).
var ErrAlreadyClaimed = errors.New("already_claimed")

// ErrClaimRaceCondition means the insert itself collided with a concurrent
// winner between the SELECT and the INSERT (spec §4.8 step 6).
var ErrClaimRaceCondition = errors.New("claim_race_condition")

// ErrClaimNotOwned means a release/complete was attempted by a worker other
// than the one that holds the claim.
var ErrClaimNotOwned = errors.New("claim not owned by this worker")

// TaskClaim mirrors the task_claims row (spec §3/§4.8).
type TaskClaim struct {
	TaskID      string
	WorkerID    string
	Status      string // "active" | "completed"
	ClaimedAt   int64
	CompletedAt sql.NullInt64
	Metadata    map[string]interface{}
}

// InsertClaim performs the single-winner transactional claim of spec §4.8
// step 4: SELECT to detect any existing row (active or completed), then
// INSERT. The database's uniqueness constraint is the real arbiter — a
// PRIMARY KEY collision on concurrent INSERTs surfaces as
// ErrClaimRaceCondition rather than trusting the SELECT's result, since two
// transactions can both pass the SELECT check before either commits.
func (s *Store) InsertClaim(taskID, workerID string, metadata map[string]interface{}) (*TaskClaim, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal claim metadata: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM task_claims WHERE task_id = ?`, taskID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check existing claim: %w", err)
	}
	if exists > 0 {
		return nil, ErrAlreadyClaimed
	}

	claimedAt := nowMillis()
	_, err = tx.Exec(`INSERT INTO task_claims (task_id, worker_id, status, claimed_at, metadata) VALUES (?, ?, 'active', ?, ?)`,
		taskID, workerID, claimedAt, string(metaJSON))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrClaimRaceCondition
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrClaimRaceCondition
		}
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	return &TaskClaim{TaskID: taskID, WorkerID: workerID, Status: "active", ClaimedAt: claimedAt, Metadata: metadata}, nil
}

// CompleteClaim sets status=completed, completed_at=now. Only the owning
// worker may complete it (spec §4.8 release).
func (s *Store) CompleteClaim(taskID, workerID string) error {
	res, err := s.db.Exec(`UPDATE task_claims SET status = 'completed', completed_at = ? WHERE task_id = ? AND worker_id = ? AND status = 'active'`,
		nowMillis(), taskID, workerID)
	if err != nil {
		return fmt.Errorf("complete claim %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClaimNotOwned
	}
	return nil
}

// DeleteClaim removes a claim row entirely, the mechanism behind
// mark_for_reassignment (spec §4.8): after the delete, the ready-task source
// may re-surface task_id for a fresh claim.
func (s *Store) DeleteClaim(taskID string) error {
	_, err := s.db.Exec(`DELETE FROM task_claims WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete claim %s: %w", taskID, err)
	}
	return nil
}

// GetWorkerClaims returns active claims owned by a worker.
func (s *Store) GetWorkerClaims(workerID string) ([]*TaskClaim, error) {
	rows, err := s.db.Query(`SELECT task_id, worker_id, status, claimed_at, completed_at, metadata FROM task_claims WHERE worker_id = ? AND status = 'active'`, workerID)
	if err != nil {
		return nil, fmt.Errorf("get worker claims %s: %w", workerID, err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

// ListActiveClaims returns every active claim, used to populate the
// pending_claims in-memory cache at initialize() (spec §4.8).
func (s *Store) ListActiveClaims() ([]*TaskClaim, error) {
	rows, err := s.db.Query(`SELECT task_id, worker_id, status, claimed_at, completed_at, metadata FROM task_claims WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("list active claims: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]*TaskClaim, error) {
	var out []*TaskClaim
	for rows.Next() {
		var c TaskClaim
		var metaJSON string
		if err := rows.Scan(&c.TaskID, &c.WorkerID, &c.Status, &c.ClaimedAt, &c.CompletedAt, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY"))
}
