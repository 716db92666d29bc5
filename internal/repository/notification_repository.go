package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/okulsoft/absence-dispatch/internal/domain"
)

// ErrAlreadySent is returned by RecordAttempt when the row has already
// reached the terminal sent state. The at-most-one-sent invariant is enforced
// here, at the store, so a stray duplicate trigger cannot double-text a
// parent.
var ErrAlreadySent = errors.New("notification already sent")

const notificationColumns = `id, student_id, parent_id, class_id, date_key, phone_number, message,
		status, attempts, retryable, last_attempt_at, error_message, provider_message_id, created_at, updated_at`

// NotificationRepository is the durable dispatch log store: one row per
// (student, date), status pending/sent/failed with attempt bookkeeping.
type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// UpsertPending creates the pending record for (student, date) if none
// exists, and returns the current row either way. An existing row is never
// modified here; status transitions go through RecordAttempt only.
func (r *NotificationRepository) UpsertPending(ctx context.Context, n *domain.AbsenceNotification) (*domain.AbsenceNotification, error) {
	query := `
		INSERT INTO absence_notifications
			(student_id, parent_id, class_id, date_key, phone_number, message, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE id = id
	`

	_, err := r.db.ExecContext(ctx, query,
		n.StudentID, n.ParentID, n.ClassID, n.DateKey, n.PhoneNumber, n.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pending notification: %w", err)
	}

	return r.GetByStudentAndDate(ctx, n.StudentID, n.DateKey)
}

// RecordAttempt applies one gateway attempt to the row as a single
// conditional update guarded by status <> 'sent'. Zero affected rows means
// the record already reached the terminal sent state.
func (r *NotificationRepository) RecordAttempt(ctx context.Context, id int64, outcome domain.AttemptOutcome) error {
	var query string
	var args []any

	if outcome.Success {
		query = `
			UPDATE absence_notifications
			SET status = 'sent',
			    attempts = attempts + 1,
			    last_attempt_at = ?,
			    provider_message_id = ?,
			    error_message = NULL,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status <> 'sent'
		`
		args = []any{outcome.AttemptedAt, outcome.ProviderMessageID, id}
	} else {
		query = `
			UPDATE absence_notifications
			SET status = 'failed',
			    attempts = attempts + 1,
			    retryable = ?,
			    last_attempt_at = ?,
			    error_message = ?,
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status <> 'sent'
		`
		args = []any{outcome.Retryable, outcome.AttemptedAt, outcome.ErrorMessage, id}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return ErrAlreadySent
	}

	return nil
}

func (r *NotificationRepository) GetByStudentAndDate(ctx context.Context, studentID int64, dateKey string) (*domain.AbsenceNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM absence_notifications
		WHERE student_id = ? AND date_key = ?
	`

	var n domain.AbsenceNotification
	if err := r.db.GetContext(ctx, &n, query, studentID, dateKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return &n, nil
}

// GetByDate returns all dispatch log rows for a date keyed by student id,
// letting the eligibility check run off one query per class batch.
func (r *NotificationRepository) GetByDate(ctx context.Context, dateKey string) (map[int64]*domain.AbsenceNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM absence_notifications
		WHERE date_key = ?
	`

	var rows []domain.AbsenceNotification
	if err := r.db.SelectContext(ctx, &rows, query, dateKey); err != nil {
		return nil, fmt.Errorf("failed to get notifications for date: %w", err)
	}

	byStudent := make(map[int64]*domain.AbsenceNotification, len(rows))
	for i := range rows {
		byStudent[rows[i].StudentID] = &rows[i]
	}

	return byStudent, nil
}

// Query returns a page of dispatch log rows with joined display fields for
// the monitoring console.
func (r *NotificationRepository) Query(
	ctx context.Context,
	filter domain.QueryFilter,
	page, pageSize int,
) ([]domain.NotificationLogEntry, int64, error) {
	conditions := []string{"n.date_key = ?"}
	args := []any{filter.DateKey}

	if filter.Status != nil {
		conditions = append(conditions, "n.status = ?")
		args = append(args, *filter.Status)
	}
	if filter.ClassID != nil {
		conditions = append(conditions, "n.class_id = ?")
		args = append(args, *filter.ClassID)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(s.name LIKE ? OR s.parent_name LIKE ? OR n.message LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}

	where := strings.Join(conditions, " AND ")

	countQuery := `
		SELECT COUNT(*)
		FROM absence_notifications n
		JOIN students s ON s.id = n.student_id
		JOIN classes c ON c.id = n.class_id
		WHERE ` + where

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT n.id, n.student_id, n.parent_id, n.class_id, n.date_key, n.phone_number, n.message,
		       n.status, n.attempts, n.retryable, n.last_attempt_at, n.error_message, n.provider_message_id,
		       n.created_at, n.updated_at,
		       s.name AS student_name, s.parent_name AS parent_name, c.name AS class_name
		FROM absence_notifications n
		JOIN students s ON s.id = n.student_id
		JOIN classes c ON c.id = n.class_id
		WHERE ` + where + `
		ORDER BY n.updated_at DESC
		LIMIT ? OFFSET ?
	`

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)

	var entries []domain.NotificationLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}

	return entries, totalCount, nil
}

// Summarize returns per-class status counts for one date.
func (r *NotificationRepository) Summarize(ctx context.Context, dateKey string) ([]domain.ClassStatusCounts, error) {
	query := `
		SELECT class_id,
		       COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)    AS sent,
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)  AS failed,
		       COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending
		FROM absence_notifications
		WHERE date_key = ?
		GROUP BY class_id
	`

	var counts []domain.ClassStatusCounts
	if err := r.db.SelectContext(ctx, &counts, query, dateKey); err != nil {
		return nil, fmt.Errorf("failed to summarize notifications: %w", err)
	}

	return counts, nil
}
