package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mariannseck-design/mon-khatma/internal/dispatch"
	"github.com/mariannseck-design/mon-khatma/internal/store"
)

type Handler struct {
	Store          store.Store
	Cache          *store.RedisStore
	Dispatcher     *dispatch.Dispatcher
	VapidPublicKey string
}

func NewHandler(s store.Store, cache *store.RedisStore, d *dispatch.Dispatcher, vapidPublicKey string) *Handler {
	return &Handler{
		Store:          s,
		Cache:          cache,
		Dispatcher:     d,
		VapidPublicKey: vapidPublicKey,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
