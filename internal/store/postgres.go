package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mariannseck-design/mon-khatma/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, username, password string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING id, username, password_hash, created_at`,
		username, passwordHash,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	return user, err
}

// Subscription methods

func (s *PostgresStore) SaveSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (endpoint) DO UPDATE
		 SET user_id = EXCLUDED.user_id,
		     p256dh = EXCLUDED.p256dh,
		     auth = EXCLUDED.auth,
		     updated_at = NOW()`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) SubscriptionsForUser(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (s *PostgresStore) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (s *PostgresStore) DeleteUserSubscription(ctx context.Context, userID int, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	return err
}

// Reminder methods

func (s *PostgresStore) CreateReminder(ctx context.Context, r models.ReadingReminder) (models.ReadingReminder, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO reading_reminders (user_id, reminder_time, message, is_enabled, days_of_week, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		r.UserID, r.ReminderTime, r.Message, r.IsEnabled, pq.Array(r.DaysOfWeek),
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)

	return r, err
}

func (s *PostgresStore) GetReminder(ctx context.Context, userID, id int) (models.ReadingReminder, error) {
	var r models.ReadingReminder
	var days pq.Int64Array
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, reminder_time, message, is_enabled, days_of_week, created_at, updated_at
		 FROM reading_reminders WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&r.ID, &r.UserID, &r.ReminderTime, &r.Message, &r.IsEnabled, &days, &r.CreatedAt, &r.UpdatedAt)

	if err == sql.ErrNoRows {
		return models.ReadingReminder{}, ErrNotFound
	}
	if err != nil {
		return models.ReadingReminder{}, err
	}
	r.DaysOfWeek = []int64(days)
	return r, nil
}

func (s *PostgresStore) GetReminders(ctx context.Context, userID int) ([]models.ReadingReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, reminder_time, message, is_enabled, days_of_week, created_at, updated_at
		 FROM reading_reminders WHERE user_id = $1 ORDER BY reminder_time`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReminders(rows)
}

func (s *PostgresStore) UpdateReminder(ctx context.Context, r models.ReadingReminder) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reading_reminders
		 SET reminder_time = $1, message = $2, is_enabled = $3, days_of_week = $4, updated_at = NOW()
		 WHERE id = $5 AND user_id = $6`,
		r.ReminderTime, r.Message, r.IsEnabled, pq.Array(r.DaysOfWeek), r.ID, r.UserID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteReminder(ctx context.Context, userID, id int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reading_reminders WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	return err
}

func (s *PostgresStore) DueReminders(ctx context.Context, weekday time.Weekday) ([]models.ReadingReminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, reminder_time, message, is_enabled, days_of_week, created_at, updated_at
		 FROM reading_reminders WHERE is_enabled = TRUE AND $1 = ANY(days_of_week)`,
		int(weekday),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]models.ReadingReminder, error) {
	var reminders []models.ReadingReminder
	for rows.Next() {
		var r models.ReadingReminder
		var days pq.Int64Array
		if err := rows.Scan(&r.ID, &r.UserID, &r.ReminderTime, &r.Message, &r.IsEnabled, &days, &r.CreatedAt, &r.UpdatedAt); err != nil {
			continue
		}
		r.DaysOfWeek = []int64(days)
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}
