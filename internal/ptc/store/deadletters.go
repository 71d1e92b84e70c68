package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/maumercado/ptc/internal/ptc/message"
)

// ErrDeadLetterNotFound is returned when a lookup by id matches no row.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// Resolution is the terminal disposition an operator (or automation) gives
// a resolved dead letter (spec §3).
type Resolution string

const (
	ResolutionRetried   Resolution = "retried"
	ResolutionSkipped   Resolution = "skipped"
	ResolutionEscalated Resolution = "escalated"
)

// DeadLetter mirrors the dead_letters row (spec §3/§4.11).
type DeadLetter struct {
	ID                string             `json:"id"`
	OriginalMessageID string             `json:"original_message_id"`
	Sender            string             `json:"sender"`
	Recipient         string             `json:"recipient"`
	Content           []byte             `json:"content"`
	Importance        message.Importance `json:"-"`
	Type              string             `json:"type"`
	Error             string             `json:"error"`
	FailedAt          int64              `json:"failed_at"`
	RetryCount        int                `json:"retry_count"`
	Resolved          bool               `json:"resolved"`
	ResolvedAt        sql.NullInt64      `json:"resolved_at,omitempty"`
	Resolution        sql.NullString     `json:"resolution,omitempty"`
	NextRetryAt       sql.NullInt64      `json:"next_retry_at,omitempty"`
}

// MarshalJSON renders Importance as its string label, matching the
// teacher's JSON-shape convention for enum fields (see message.Message).
func (d *DeadLetter) MarshalJSON() ([]byte, error) {
	type alias DeadLetter
	return json.Marshal(struct {
		*alias
		Importance string `json:"importance"`
	}{
		alias:      (*alias)(d),
		Importance: d.Importance.String(),
	})
}

// InsertDeadLetter inserts "dl-"+message.id keyed on the original message,
// per spec §4.11/§3.
func (s *Store) InsertDeadLetter(m *message.Message, errMsg string) (*DeadLetter, error) {
	dl := &DeadLetter{
		ID:                "dl-" + m.ID,
		OriginalMessageID: m.ID,
		Sender:            m.Sender,
		Recipient:         m.Recipient,
		Content:           m.Payload,
		Importance:        m.Importance,
		Type:              m.Type,
		Error:             errMsg,
		FailedAt:          nowMillis(),
		RetryCount:        m.RetryCount,
	}
	_, err := s.db.Exec(`
		INSERT INTO dead_letters (id, original_message_id, sender, recipient, content, importance, type, error, failed_at, retry_count, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		dl.ID, dl.OriginalMessageID, dl.Sender, dl.Recipient, string(dl.Content), dl.Importance.String(), dl.Type, dl.Error, dl.FailedAt, dl.RetryCount,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dead letter %s: %w", dl.ID, err)
	}
	return dl, nil
}

// GetDeadLetter fetches by id.
func (s *Store) GetDeadLetter(id string) (*DeadLetter, error) {
	row := s.db.QueryRow(`SELECT id, original_message_id, sender, recipient, content, importance, type, error, failed_at, retry_count, resolved, resolved_at, resolution, next_retry_at FROM dead_letters WHERE id = ?`, id)
	return scanDeadLetter(row)
}

// ListDeadLettersFilter scopes ListDeadLetters.
type ListDeadLettersFilter struct {
	UnresolvedOnly bool
	Sender         string
	Limit          int
	Offset         int
}

// ListDeadLetters returns dead letters matching the filter, most recent first.
func (s *Store) ListDeadLetters(f ListDeadLettersFilter) ([]*DeadLetter, error) {
	query := `SELECT id, original_message_id, sender, recipient, content, importance, type, error, failed_at, retry_count, resolved, resolved_at, resolution, next_retry_at FROM dead_letters WHERE 1=1`
	var args []interface{}
	if f.UnresolvedOnly {
		query += ` AND resolved = 0`
	}
	if f.Sender != "" {
		query += ` AND sender = ?`
		args = append(args, f.Sender)
	}
	query += ` ORDER BY failed_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()
	return scanDeadLetters(rows)
}

// GetDueForRetry returns unresolved dead letters whose next_retry_at has
// arrived (spec §4.11).
func (s *Store) GetDueForRetry(limit int) ([]*DeadLetter, error) {
	rows, err := s.db.Query(`
		SELECT id, original_message_id, sender, recipient, content, importance, type, error, failed_at, retry_count, resolved, resolved_at, resolution, next_retry_at
		FROM dead_letters
		WHERE resolved = 0 AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY failed_at ASC LIMIT ?`, nowMillis(), limit)
	if err != nil {
		return nil, fmt.Errorf("get due for retry: %w", err)
	}
	defer rows.Close()
	return scanDeadLetters(rows)
}

// ResolveDeadLetter marks a dead letter resolved (terminal). A second call is a no-op
// that reports zero rows changed, matching spec §8's idempotence law.
func (s *Store) ResolveDeadLetter(id string, resolution Resolution) (bool, error) {
	res, err := s.db.Exec(`UPDATE dead_letters SET resolved = 1, resolved_at = ?, resolution = ? WHERE id = ? AND resolved = 0`,
		nowMillis(), string(resolution), id)
	if err != nil {
		return false, fmt.Errorf("resolve dead letter %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateDeadLetterRetryCount sets the DL row's own retry_count. Per spec §9.b this
// never touches the original messages row.
func (s *Store) UpdateDeadLetterRetryCount(id string, retryCount int) error {
	res, err := s.db.Exec(`UPDATE dead_letters SET retry_count = ? WHERE id = ?`, retryCount, id)
	if err != nil {
		return fmt.Errorf("update dead letter retry count %s: %w", id, err)
	}
	return requireDeadLetterRowAffected(res)
}

// ScheduleDeadLetterRetry sets next_retry_at without resolving the row.
func (s *Store) ScheduleDeadLetterRetry(id string, nextRetryAtMillis int64) error {
	res, err := s.db.Exec(`UPDATE dead_letters SET next_retry_at = ? WHERE id = ? AND resolved = 0`, nextRetryAtMillis, id)
	if err != nil {
		return fmt.Errorf("schedule dead letter retry %s: %w", id, err)
	}
	return requireDeadLetterRowAffected(res)
}

// BatchResolveDeadLetters resolves many dead letters in one transaction.
func (s *Store) BatchResolveDeadLetters(ids []string, resolution Resolution) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin batch resolve tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE dead_letters SET resolved = 1, resolved_at = ?, resolution = ? WHERE id = ? AND resolved = 0`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch resolve: %w", err)
	}
	defer stmt.Close()

	var total int64
	now := nowMillis()
	for _, id := range ids {
		res, err := stmt.Exec(now, string(resolution), id)
		if err != nil {
			return total, fmt.Errorf("batch resolve %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch resolve tx: %w", err)
	}
	return total, nil
}

// DeadLetterStats summarizes counts.
type DeadLetterStats struct {
	Total      int64 `json:"total"`
	Unresolved int64 `json:"unresolved"`
	Resolved   int64 `json:"resolved"`
}

// GetDeadLetterStats returns dead letter counts.
func (s *Store) GetDeadLetterStats() (*DeadLetterStats, error) {
	row := s.db.QueryRow(`SELECT COUNT(*), SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), SUM(CASE WHEN resolved = 1 THEN 1 ELSE 0 END) FROM dead_letters`)
	var total int64
	var unresolved, resolved sql.NullInt64
	if err := row.Scan(&total, &unresolved, &resolved); err != nil {
		return nil, fmt.Errorf("get dead letter stats: %w", err)
	}
	return &DeadLetterStats{Total: total, Unresolved: unresolved.Int64, Resolved: resolved.Int64}, nil
}

func scanDeadLetter(row *sql.Row) (*DeadLetter, error) {
	var dl DeadLetter
	var content, importance string
	if err := row.Scan(&dl.ID, &dl.OriginalMessageID, &dl.Sender, &dl.Recipient, &content, &importance, &dl.Type, &dl.Error, &dl.FailedAt, &dl.RetryCount, &dl.Resolved, &dl.ResolvedAt, &dl.Resolution, &dl.NextRetryAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}
	dl.Content = []byte(content)
	dl.Importance = message.ParseImportance(importance)
	return &dl, nil
}

func scanDeadLetters(rows *sql.Rows) ([]*DeadLetter, error) {
	var out []*DeadLetter
	for rows.Next() {
		var dl DeadLetter
		var content, importance string
		if err := rows.Scan(&dl.ID, &dl.OriginalMessageID, &dl.Sender, &dl.Recipient, &content, &importance, &dl.Type, &dl.Error, &dl.FailedAt, &dl.RetryCount, &dl.Resolved, &dl.ResolvedAt, &dl.Resolution, &dl.NextRetryAt); err != nil {
			return nil, fmt.Errorf("scan dead letter row: %w", err)
		}
		dl.Content = []byte(content)
		dl.Importance = message.ParseImportance(importance)
		out = append(out, &dl)
	}
	return out, rows.Err()
}

func requireDeadLetterRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}
