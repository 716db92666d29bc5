package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

// RunMigrations creates the dispatch log table owned by this service, plus
// the host-schema tables it reads (students, classes, attendance) so the
// service can run standalone in dev and test environments.
func RunMigrations(db *sqlx.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS classes (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			notify_enabled TINYINT(1) NOT NULL DEFAULT 0,
			send_after VARCHAR(5) NOT NULL DEFAULT '09:30',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS students (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(150) NOT NULL,
			class_id BIGINT NOT NULL,
			parent_id BIGINT NOT NULL,
			parent_name VARCHAR(150) NOT NULL,
			parent_phone VARCHAR(20) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_students_class_id (class_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS attendance (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			student_id BIGINT NOT NULL,
			class_id BIGINT NOT NULL,
			date_key CHAR(10) NOT NULL,
			status VARCHAR(10) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_attendance_student_date (student_id, date_key),
			INDEX idx_attendance_class_date (class_id, date_key)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,

		`CREATE TABLE IF NOT EXISTS absence_notifications (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			student_id BIGINT NOT NULL,
			parent_id BIGINT NOT NULL,
			class_id BIGINT NOT NULL,
			date_key CHAR(10) NOT NULL,
			phone_number VARCHAR(20) NOT NULL,
			message TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			retryable TINYINT(1) NOT NULL DEFAULT 1,
			last_attempt_at DATETIME,
			error_message TEXT,
			provider_message_id VARCHAR(100),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uq_notifications_student_date (student_id, date_key),
			INDEX idx_notifications_date_status (date_key, status),
			INDEX idx_notifications_class_date (class_id, date_key)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`,
	}

	for _, schema := range schemas {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed")

	return nil
}

// SeedTestData loads a small roster with today's attendance so the dispatcher
// has something to chew on in development.
func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM classes")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d classes, skipping seed", count)
		return nil
	}

	classes := []struct {
		name      string
		enabled   bool
		sendAfter string
	}{
		{"5-A", true, "09:00"},
		{"5-B", true, "09:30"},
		{"6-A", true, "10:00"},
		{"6-B", false, "09:30"},
	}

	for _, c := range classes {
		if _, err := db.Exec(
			"INSERT INTO classes (name, notify_enabled, send_after) VALUES (?, ?, ?)",
			c.name, c.enabled, c.sendAfter,
		); err != nil {
			return fmt.Errorf("failed to seed classes: %w", err)
		}
	}

	students := []struct {
		name        string
		classID     int64
		parentID    int64
		parentName  string
		parentPhone string
	}{
		{"Ali Demir", 1, 101, "Hasan Demir", "+905551234567"},
		{"Ayse Yilmaz", 1, 102, "Fatma Yilmaz", "+905559876543"},
		{"Mehmet Kaya", 2, 103, "Osman Kaya", "+905551112233"},
		{"Zeynep Celik", 2, 104, "Emine Celik", "+905554445566"},
		{"Emre Sahin", 3, 105, "Murat Sahin", "+905557778899"},
		{"Elif Aydin", 4, 106, "Hatice Aydin", "+905552223344"},
	}

	for _, s := range students {
		if _, err := db.Exec(
			"INSERT INTO students (name, class_id, parent_id, parent_name, parent_phone) VALUES (?, ?, ?, ?, ?)",
			s.name, s.classID, s.parentID, s.parentName, s.parentPhone,
		); err != nil {
			return fmt.Errorf("failed to seed students: %w", err)
		}
	}

	today := time.Now().Format("2006-01-02")
	absences := []struct {
		studentID int64
		classID   int64
		status    string
	}{
		{1, 1, "absent"},
		{2, 1, "present"},
		{3, 2, "absent"},
		{4, 2, "late"},
		{5, 3, "absent"},
		{6, 4, "absent"},
	}

	for _, a := range absences {
		if _, err := db.Exec(
			"INSERT INTO attendance (student_id, class_id, date_key, status) VALUES (?, ?, ?, ?)",
			a.studentID, a.classID, today, a.status,
		); err != nil {
			return fmt.Errorf("failed to seed attendance: %w", err)
		}
	}

	logger.Infof("Seeded %d classes, %d students, %d attendance rows", len(classes), len(students), len(absences))
	return nil
}
