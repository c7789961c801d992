package models

import "time"

// DeliveryRecord is the outcome of a single push attempt, kept in a
// short-lived log so users can see whether their reminders went out.
type DeliveryRecord struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user_id"`
	ReminderID int       `json:"reminder_id"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	OK         bool      `json:"ok"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
