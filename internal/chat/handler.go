package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	myMiddleware "netchat/internal/middleware"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, origins *OriginPolicy, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		logger: logger,
	}
}

// ServeWs upgrades an authenticated request and attaches it to the hub.
// The auth middleware has already rejected anonymous callers.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, ok := myMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	select {
	case <-h.hub.Done():
		http.Error(w, ErrHubStopped.Error(), http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := h.hub.NewClient(conn, id, r.RemoteAddr)
	select {
	case h.hub.Register <- client:
	case <-h.hub.Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// GetRooms lists every room with its member and message counts.
func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.hub.Rooms(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoomList{Rooms: rooms})
}

// GetRoomMessages returns a room's retained history.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	msgs, ok, err := h.hub.History(r.Context(), name)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		http.Error(w, ErrRoomNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, RoomMessages{Room: name, Messages: msgs})
}

// GetOnline lists connected users and the room each one is in.
func (h *Handler) GetOnline(w http.ResponseWriter, r *http.Request) {
	users, err := h.hub.Online(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrHubStopped) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.logger.Error("hub query", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
