package domain

import "time"

type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// DateKeyLayout is the school-local calendar date that scopes one day's
// notification records.
const DateKeyLayout = "2006-01-02"

// AbsenceNotification is the durable per-(student, date) dispatch log record.
// At most one row exists per student per date; once sent it is never
// re-attempted.
type AbsenceNotification struct {
	ID                int64              `db:"id" json:"id"`
	StudentID         int64              `db:"student_id" json:"studentId"`
	ParentID          int64              `db:"parent_id" json:"parentId"`
	ClassID           int64              `db:"class_id" json:"classId"`
	DateKey           string             `db:"date_key" json:"dateKey"`
	PhoneNumber       string             `db:"phone_number" json:"phoneNumber"`
	Message           string             `db:"message" json:"message"`
	Status            NotificationStatus `db:"status" json:"status"`
	Attempts          int                `db:"attempts" json:"attempts"`
	Retryable         bool               `db:"retryable" json:"retryable"`
	LastAttemptAt     *time.Time         `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	ErrorMessage      *string            `db:"error_message" json:"errorMessage,omitempty"`
	ProviderMessageID *string            `db:"provider_message_id" json:"providerMessageId,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updatedAt"`
}

// NotificationLogEntry is a dispatch log row joined with display fields for
// the monitoring console.
type NotificationLogEntry struct {
	AbsenceNotification
	StudentName string `db:"student_name" json:"studentName"`
	ParentName  string `db:"parent_name" json:"parentName"`
	ClassName   string `db:"class_name" json:"className"`
}

// AbsentStudent is one row of the attendance lookup: a student marked absent
// on a date together with the guardian to notify.
type AbsentStudent struct {
	StudentID   int64  `db:"student_id" json:"studentId"`
	ParentID    int64  `db:"parent_id" json:"parentId"`
	StudentName string `db:"student_name" json:"studentName"`
	ParentName  string `db:"parent_name" json:"parentName"`
	PhoneNumber string `db:"parent_phone" json:"phoneNumber"`
}

// ClassDispatchConfig is the per-class dispatch configuration, stored
// alongside the class record and owned by the host application.
type ClassDispatchConfig struct {
	ClassID   int64  `db:"class_id" json:"classId"`
	ClassName string `db:"class_name" json:"className"`
	SendAfter string `db:"send_after" json:"sendAfter"` // "HH:MM", school-local
	Enabled   bool   `db:"notify_enabled" json:"enabled"`
}

// AttemptOutcome is the result of one gateway send, recorded atomically
// against the notification row.
type AttemptOutcome struct {
	Success           bool
	ProviderMessageID string
	ErrorMessage      string
	Retryable         bool
	AttemptedAt       time.Time
}

// CycleResult summarizes one dispatch cycle. It is returned by the manual
// trigger and logged after every scheduled run; it is never persisted.
type CycleResult struct {
	DateKey             string        `json:"dateKey"`
	ClassesProcessed    int           `json:"classesProcessed"`
	ClassesDeferred     int           `json:"classesDeferred"`
	StudentsDeferred    int           `json:"studentsDeferred"`
	Attempted           int           `json:"attempted"`
	Sent                int           `json:"sent"`
	Failed              int           `json:"failed"`
	SkippedBeforeCutoff int           `json:"skippedBeforeCutoff"`
	SkippedBackoff      int           `json:"skippedBackoff"`
	AlreadyHandled      int           `json:"alreadyHandled"`
	StoreErrors         int           `json:"storeErrors"`
	AuthAlert           bool          `json:"authAlert"`
	StartedAt           time.Time     `json:"startedAt"`
	Duration            time.Duration `json:"durationMs"`
}

// SentNotificationCache is the Redis-side marker for a delivered
// notification, used to short-circuit eligibility checks.
type SentNotificationCache struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

// QueryFilter narrows the dispatch log query.
type QueryFilter struct {
	DateKey string
	Status  *NotificationStatus
	ClassID *int64
	Search  string
}

// ClassStatusCounts is the per-class status rollup for one date.
type ClassStatusCounts struct {
	ClassID int64 `db:"class_id" json:"classId"`
	Sent    int   `db:"sent" json:"sent"`
	Failed  int   `db:"failed" json:"failed"`
	Pending int   `db:"pending" json:"pending"`
}
