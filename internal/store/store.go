package store

import (
	"context"
	"time"

	"github.com/mariannseck-design/mon-khatma/internal/models"
)

// UserStore handles account rows (PostgreSQL)
type UserStore interface {
	CreateUser(ctx context.Context, username, password string) (models.User, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// SubscriptionStore handles push subscription rows (PostgreSQL)
type SubscriptionStore interface {
	// SaveSubscription upserts by endpoint: one endpoint belongs to exactly
	// one browser installation, so re-registering replaces the row.
	SaveSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	SubscriptionsForUser(ctx context.Context, userID int) ([]models.PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
	DeleteUserSubscription(ctx context.Context, userID int, endpoint string) error
}

// ReminderStore handles reading reminder rows (PostgreSQL)
type ReminderStore interface {
	CreateReminder(ctx context.Context, r models.ReadingReminder) (models.ReadingReminder, error)
	GetReminder(ctx context.Context, userID, id int) (models.ReadingReminder, error)
	GetReminders(ctx context.Context, userID int) ([]models.ReadingReminder, error)
	UpdateReminder(ctx context.Context, r models.ReadingReminder) error
	DeleteReminder(ctx context.Context, userID, id int) error
	// DueReminders is the coarse day-granularity filter; minute matching
	// happens in the dispatcher.
	DueReminders(ctx context.Context, weekday time.Weekday) ([]models.ReadingReminder, error)
}

// Store is everything the HTTP layer needs.
type Store interface {
	UserStore
	SubscriptionStore
	ReminderStore
}
