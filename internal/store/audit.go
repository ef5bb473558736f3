package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// RequestRecord is one row of the audit trail: a process or clarify call
// and how it ended.
type RequestRecord struct {
	ID          string
	RequestID   string
	SessionID   string
	Operation   string
	InputType   string
	Status      string
	ErrorKind   string
	Intent      string
	Confidence  float64
	Fallback    bool
	TaskSuccess *bool
	ElapsedMS   int64
	CreatedAt   time.Time
}

func (s *Store) RecordRequest(ctx context.Context, r RequestRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	var taskSuccess sql.NullBool
	if r.TaskSuccess != nil {
		taskSuccess = sql.NullBool{Bool: *r.TaskSuccess, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_log (id, request_id, session_id, operation, input_type, status, error_kind, intent, confidence, fallback, task_success, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.RequestID, r.SessionID, r.Operation, r.InputType, r.Status, r.ErrorKind, r.Intent, r.Confidence, r.Fallback, taskSuccess, r.ElapsedMS,
	)
	return err
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]RequestRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, session_id, operation, input_type, status, error_kind, intent, confidence, fallback, task_success, elapsed_ms, created_at
		FROM request_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestRecord
	for rows.Next() {
		var r RequestRecord
		var taskSuccess sql.NullBool
		if err := rows.Scan(&r.ID, &r.RequestID, &r.SessionID, &r.Operation, &r.InputType, &r.Status, &r.ErrorKind, &r.Intent, &r.Confidence, &r.Fallback, &taskSuccess, &r.ElapsedMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		if taskSuccess.Valid {
			v := taskSuccess.Bool
			r.TaskSuccess = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
