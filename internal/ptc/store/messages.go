package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maumercado/ptc/internal/ptc/message"
)

// ErrMessageNotFound is returned when a lookup by id matches no row.
var ErrMessageNotFound = errors.New("message not found")

// StoreOutgoing inserts a new message row with status=pending, retry_count=0
// (spec §4.2). The write failure surfaces directly to the caller per spec
// §4.2's "a write failure surfaces to the caller" contract.
func (s *Store) StoreOutgoing(m *message.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count, dead_letter)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
		m.ID, m.Sender, m.Recipient, string(m.Payload), m.Importance.String(), m.Type,
		string(message.StatusPending), nullableString(m.CorrelationID), m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store outgoing message %s: %w", m.ID, err)
	}
	return nil
}

// MarkDelivered sets status=delivered, delivered_at=now.
func (s *Store) MarkDelivered(id string) error {
	res, err := s.db.Exec(`UPDATE messages SET status = ?, delivered_at = ? WHERE id = ?`,
		string(message.StatusDelivered), nowMillis(), id)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", id, err)
	}
	return requireRowAffected(res)
}

// Acknowledge updates the row where id=? AND recipient=?. If no row matches,
// it returns (false, nil) and the caller must not escalate (spec §4.2).
func (s *Store) Acknowledge(id, recipient string) (bool, error) {
	res, err := s.db.Exec(`UPDATE messages SET status = ?, acknowledged_at = ? WHERE id = ? AND recipient = ?`,
		string(message.StatusAcknowledged), nowMillis(), id, recipient)
	if err != nil {
		return false, fmt.Errorf("acknowledge %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed sets status=failed, error=?, retry_count=retry_count+1.
func (s *Store) MarkFailed(id, errMsg string) error {
	res, err := s.db.Exec(`UPDATE messages SET status = ?, error = ?, retry_count = retry_count + 1 WHERE id = ?`,
		string(message.StatusFailed), errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return requireRowAffected(res)
}

// MarkDeadLetter sets status=dead_letter, dead_letter=1, error=?.
func (s *Store) MarkDeadLetter(id, errMsg string) error {
	res, err := s.db.Exec(`UPDATE messages SET status = ?, dead_letter = 1, error = ? WHERE id = ?`,
		string(message.StatusDeadLetter), errMsg, id)
	if err != nil {
		return fmt.Errorf("mark dead letter %s: %w", id, err)
	}
	return requireRowAffected(res)
}

// Get fetches a message by id.
func (s *Store) Get(id string) (*message.Message, error) {
	row := s.db.QueryRow(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// GetByStatus returns up to limit rows in a given status.
func (s *Store) GetByStatus(status message.Status, limit int) ([]*message.Message, error) {
	rows, err := s.db.Query(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("get by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetBySender returns messages sent by a given sender.
func (s *Store) GetBySender(sender string, limit int) ([]*message.Message, error) {
	rows, err := s.db.Query(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE sender = ? ORDER BY created_at ASC LIMIT ?`,
		sender, limit)
	if err != nil {
		return nil, fmt.Errorf("get by sender %s: %w", sender, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetByRecipient returns messages addressed to a given recipient.
func (s *Store) GetByRecipient(recipient string, limit int) ([]*message.Message, error) {
	rows, err := s.db.Query(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE recipient = ? ORDER BY created_at ASC LIMIT ?`,
		recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("get by recipient %s: %w", recipient, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetByCorrelation returns every message in a correlation chain.
func (s *Store) GetByCorrelation(correlationID string) ([]*message.Message, error) {
	rows, err := s.db.Query(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE correlation_id = ? ORDER BY created_at ASC`,
		correlationID)
	if err != nil {
		return nil, fmt.Errorf("get by correlation %s: %w", correlationID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetPendingForRetry returns failed messages whose retry_count is below max.
func (s *Store) GetPendingForRetry(maxAttempts, limit int) ([]*message.Message, error) {
	rows, err := s.db.Query(`SELECT id, sender, recipient, content, importance, type, status, correlation_id, created_at, retry_count FROM messages WHERE status = ? AND retry_count < ? ORDER BY created_at ASC LIMIT ?`,
		string(message.StatusFailed), maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending for retry: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Stats summarizes message counts per status and average ack latency.
type Stats struct {
	CountByStatus       map[string]int64 `json:"count_by_status"`
	AvgAckLatencyMillis float64          `json:"avg_ack_latency_millis"`
}

// GetStats returns counts per status plus the average acknowledged_at minus
// delivered_at over acknowledged messages.
func (s *Store) GetStats() (*Stats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer rows.Close()

	out := &Stats{CountByStatus: map[string]int64{}}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out.CountByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`SELECT AVG(acknowledged_at - delivered_at) FROM messages WHERE status = ? AND delivered_at IS NOT NULL AND acknowledged_at IS NOT NULL`,
		string(message.StatusAcknowledged))
	var avg sql.NullFloat64
	if err := row.Scan(&avg); err != nil {
		return nil, fmt.Errorf("get avg ack latency: %w", err)
	}
	if avg.Valid {
		out.AvgAckLatencyMillis = avg.Float64
	}
	return out, nil
}

// Cleanup deletes rows older than the cutoff that are in a terminal status.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM messages WHERE created_at < ? AND status IN (?, ?)`,
		cutoff, string(message.StatusAcknowledged), string(message.StatusDeadLetter))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return res.RowsAffected()
}

func scanMessage(row *sql.Row) (*message.Message, error) {
	var m message.Message
	var content, importance, status string
	var correlationID sql.NullString
	if err := row.Scan(&m.ID, &m.Sender, &m.Recipient, &content, &importance, &m.Type, &status, &correlationID, &m.Timestamp, &m.RetryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Payload = []byte(content)
	m.Importance = message.ParseImportance(importance)
	m.ImportanceLabel = m.Importance.String()
	m.Status = message.ParseStatus(status)
	m.CorrelationID = correlationID.String
	m.Version = message.Version
	return &m, nil
}

func scanMessages(rows *sql.Rows) ([]*message.Message, error) {
	var out []*message.Message
	for rows.Next() {
		var m message.Message
		var content, importance, status string
		var correlationID sql.NullString
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &content, &importance, &m.Type, &status, &correlationID, &m.Timestamp, &m.RetryCount); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Payload = []byte(content)
		m.Importance = message.ParseImportance(importance)
		m.ImportanceLabel = m.Importance.String()
		m.Status = message.ParseStatus(status)
		m.CorrelationID = correlationID.String
		m.Version = message.Version
		out = append(out, &m)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMessageNotFound
	}
	return nil
}
