package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
)

var (
	sessionStore = sessions.NewCookieStore([]byte(sessionSecret()))
	sessionName  = "khatma-session"
)

func sessionSecret() string {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return s
	}
	return "secret-key-change-in-production"
}

// RegisterHandler creates an account
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Username == "" || len(req.Password) < 8 {
		http.Error(w, "Username required and password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	if existing, err := h.Store.GetUserByUsername(r.Context(), req.Username); err == nil && existing.ID != 0 {
		http.Error(w, "Username already exists", http.StatusConflict)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Save(r, w)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// LoginHandler handles login
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if !user.CheckPassword(req.Password) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Save(r, w)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

// LogoutHandler clears the session
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionStore.Get(r, sessionName)
	session.Values["user_id"] = nil
	session.Options.MaxAge = -1
	session.Save(r, w)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetCurrentUser returns the session user id and username
func GetCurrentUser(r *http.Request) (int, string, bool) {
	session, _ := sessionStore.Get(r, sessionName)
	userID, ok := session.Values["user_id"].(int)
	if !ok || userID == 0 {
		return 0, "", false
	}
	username, _ := session.Values["username"].(string)
	return userID, username, true
}

// AuthMiddleware checks if user is authenticated
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := GetCurrentUser(r); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
