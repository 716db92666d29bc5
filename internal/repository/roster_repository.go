package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/okulsoft/absence-dispatch/internal/domain"
)

// ErrClassNotFound is returned when a class id does not exist.
var ErrClassNotFound = errors.New("class not found")

// RosterRepository covers the host application's schema: class dispatch
// configuration and the attendance/roster join. Attendance and students are
// read-only from this service; class dispatch settings can be updated.
type RosterRepository struct {
	db *sqlx.DB
}

func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// GetEnabledClasses returns the dispatch configuration of every class with
// absence notifications switched on.
func (r *RosterRepository) GetEnabledClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error) {
	query := `
		SELECT id AS class_id, name AS class_name, send_after, notify_enabled
		FROM classes
		WHERE notify_enabled = 1
		ORDER BY id ASC
	`

	var configs []domain.ClassDispatchConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to get enabled classes: %w", err)
	}

	return configs, nil
}

// ListClasses returns the dispatch configuration of every class, including
// ones with notifications switched off.
func (r *RosterRepository) ListClasses(ctx context.Context) ([]domain.ClassDispatchConfig, error) {
	query := `
		SELECT id AS class_id, name AS class_name, send_after, notify_enabled
		FROM classes
		ORDER BY id ASC
	`

	var configs []domain.ClassDispatchConfig
	if err := r.db.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	return configs, nil
}

// GetClass returns one class's dispatch configuration.
func (r *RosterRepository) GetClass(ctx context.Context, classID int64) (*domain.ClassDispatchConfig, error) {
	query := `
		SELECT id AS class_id, name AS class_name, send_after, notify_enabled
		FROM classes
		WHERE id = ?
	`

	var config domain.ClassDispatchConfig
	if err := r.db.GetContext(ctx, &config, query, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("failed to get class %d: %w", classID, err)
	}

	return &config, nil
}

// UpdateDispatchConfig sets a class's cutoff time and notification switch.
// Takes effect on the next dispatch cycle; already-sent notifications are
// never revisited.
func (r *RosterRepository) UpdateDispatchConfig(ctx context.Context, classID int64, sendAfter string, notifyEnabled bool) error {
	query := `
		UPDATE classes
		SET send_after = ?, notify_enabled = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, sendAfter, notifyEnabled, classID)
	if err != nil {
		return fmt.Errorf("failed to update class %d dispatch config: %w", classID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		// MySQL also reports 0 when the values are unchanged; re-check
		// existence so a no-op update is not mistaken for a missing class.
		if _, getErr := r.GetClass(ctx, classID); getErr != nil {
			return getErr
		}
	}

	return nil
}

// ListAbsentStudents returns every student of the class marked absent on the
// date, with the guardian contact to notify.
func (r *RosterRepository) ListAbsentStudents(ctx context.Context, classID int64, dateKey string) ([]domain.AbsentStudent, error) {
	query := `
		SELECT s.id AS student_id, s.parent_id, s.name AS student_name,
		       s.parent_name, s.parent_phone
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.class_id = ? AND a.date_key = ? AND a.status = 'absent'
		ORDER BY s.name ASC
	`

	var students []domain.AbsentStudent
	if err := r.db.SelectContext(ctx, &students, query, classID, dateKey); err != nil {
		return nil, fmt.Errorf("failed to list absent students: %w", err)
	}

	return students, nil
}
