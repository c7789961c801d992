package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/mariannseck-design/mon-khatma/internal/models"
	"github.com/mariannseck-design/mon-khatma/internal/store"
)

// GetRemindersHandler lists the session user's reading reminders
func (h *Handler) GetRemindersHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reminders, err := h.Store.GetReminders(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to get reminders: %v", err)
		http.Error(w, "Failed to get reminders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

// CreateReminderHandler creates a reading reminder for the session user
func (h *Handler) CreateReminderHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	reminder := models.ReadingReminder{
		UserID:       userID,
		ReminderTime: req.ReminderTime,
		Message:      req.Message,
		IsEnabled:    req.IsEnabled,
		DaysOfWeek:   req.DaysOfWeek,
	}

	if err := validateReminder(&reminder); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.Store.CreateReminder(r.Context(), reminder)
	if err != nil {
		log.Printf("Failed to create reminder: %v", err)
		http.Error(w, "Failed to create reminder", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, created)
}

// UpdateReminderHandler edits a reminder owned by the session user
func (h *Handler) UpdateReminderHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := reminderID(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid reminder id", http.StatusBadRequest)
		return
	}

	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	reminder := models.ReadingReminder{
		ID:           id,
		UserID:       userID,
		ReminderTime: req.ReminderTime,
		Message:      req.Message,
		IsEnabled:    req.IsEnabled,
		DaysOfWeek:   req.DaysOfWeek,
	}

	if err := validateReminder(&reminder); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Store.UpdateReminder(r.Context(), reminder); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Reminder not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to update reminder: %v", err)
		http.Error(w, "Failed to update reminder", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteReminderHandler deletes a reminder owned by the session user
func (h *Handler) DeleteReminderHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, ok := reminderID(r.URL.Path)
	if !ok {
		http.Error(w, "Invalid reminder id", http.StatusBadRequest)
		return
	}

	if err := h.Store.DeleteReminder(r.Context(), userID, id); err != nil {
		log.Printf("Failed to delete reminder: %v", err)
		http.Error(w, "Failed to delete reminder", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type reminderRequest struct {
	ReminderTime string  `json:"reminder_time"`
	Message      string  `json:"message"`
	IsEnabled    bool    `json:"is_enabled"`
	DaysOfWeek   []int64 `json:"days_of_week"`
}

func validateReminder(r *models.ReadingReminder) error {
	if _, err := r.MinuteOfDay(); err != nil {
		return errors.New("reminder_time must be HH:MM")
	}
	if r.IsEnabled && len(r.DaysOfWeek) == 0 {
		return errors.New("days_of_week must not be empty for an enabled reminder")
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return errors.New("days_of_week values must be 0 (Sunday) through 6 (Saturday)")
		}
	}
	return nil
}

func reminderID(path string) (int, bool) {
	idStr := strings.TrimPrefix(path, "/api/reminders/")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
