package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// GetVAPIDKeyHandler returns the public VAPID key. The key is public by
// design, so this endpoint is unauthenticated and CORS-open. An empty
// key tells clients push is not provisioned on this deployment.
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"vapidPublicKey": h.VapidPublicKey,
	})
}

// SubscribePushHandler saves a push subscription for the session user.
// Conflict target is the endpoint alone: one endpoint belongs to one
// browser installation, whichever account was signed in at the time.
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		http.Error(w, "Missing endpoint or keys", http.StatusBadRequest)
		return
	}

	if err := h.Store.SaveSubscription(r.Context(), userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		log.Printf("Failed to save subscription: %v", err)
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// UnsubscribePushHandler removes the session user's subscription for an endpoint
func (h *Handler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.Store.DeleteUserSubscription(r.Context(), userID, req.Endpoint); err != nil {
		log.Printf("Failed to delete subscription: %v", err)
		http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeliveryLogHandler returns the session user's recent push outcomes
func (h *Handler) DeliveryLogHandler(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := GetCurrentUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"deliveries": []any{}})
		return
	}

	records, err := h.Cache.DeliveryRecords(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to load delivery log: %v", err)
		http.Error(w, "Failed to load delivery log", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deliveries": records, "count": len(records)})
}

// DispatchHandler triggers one dispatcher run. Meant for an external
// cron; guarded by the shared dispatch secret when one is configured.
func (h *Handler) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !validateDispatchSecret(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	result, err := h.Dispatcher.Run(r.Context())
	if err != nil {
		log.Printf("Dispatch run failed: %v", err)
		http.Error(w, "Dispatch failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
