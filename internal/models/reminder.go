package models

import (
	"fmt"
	"time"
)

// ReadingReminder fires a push notification at ReminderTime ("HH:MM",
// server wall clock) on each weekday listed in DaysOfWeek (0=Sunday).
type ReadingReminder struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	ReminderTime string    `json:"reminder_time"`
	Message      string    `json:"message"`
	IsEnabled    bool      `json:"is_enabled"`
	DaysOfWeek   []int64   `json:"days_of_week"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MinuteOfDay parses ReminderTime into minutes since midnight.
func (r *ReadingReminder) MinuteOfDay() (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(r.ReminderTime, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid reminder time %q: %w", r.ReminderTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid reminder time %q", r.ReminderTime)
	}
	return hour*60 + minute, nil
}

// FiresOn reports whether the reminder is scheduled for the given weekday.
func (r *ReadingReminder) FiresOn(weekday time.Weekday) bool {
	for _, d := range r.DaysOfWeek {
		if d == int64(weekday) {
			return true
		}
	}
	return false
}
