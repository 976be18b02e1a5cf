// Package api exposes the relay's small HTTP surface: the sidebar's room
// list and idempotent delete endpoints for rooms and messages. These are
// plain GET handlers mounted on the WebSocket server's mux.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/streamrelay/chat-relay/internal/store"
)

// RoomStore is the persistence surface the HTTP handlers need.
type RoomStore interface {
	ListRoomsForUser(ctx context.Context, userID string) ([]store.Room, error)
	DeleteMessage(ctx context.Context, turnID string) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Handler serves the room-list and delete endpoints.
type Handler struct {
	store RoomStore
}

// NewHandler creates a Handler backed by the given store.
func NewHandler(s RoomStore) *Handler {
	return &Handler{store: s}
}

// Rooms handles GET /rooms?user_id= and responds with the user's rooms as a
// JSON array, newest first.
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	rooms, err := h.store.ListRoomsForUser(r.Context(), userID)
	if err != nil {
		log.Printf("api: list rooms user=%s: %v", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rooms)
}

// DeleteMessage handles GET /messages/delete?id=. Deleting an unknown id
// succeeds; the operation is idempotent.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "message", h.store.DeleteMessage)
}

// DeleteRoom handles GET /rooms/delete?id= and cascade-deletes the room's
// turns.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "room", h.store.DeleteRoom)
}

func (h *Handler) deleteByID(w http.ResponseWriter, r *http.Request, kind string, del func(context.Context, string) error) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	if err := del(r.Context(), id); err != nil {
		log.Printf("api: delete %s id=%s: %v", kind, id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
