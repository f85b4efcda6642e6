package chat

import "errors"

var (
	// ErrNotInRoom is returned for room scoped actions from a room-less session.
	ErrNotInRoom = errors.New("not in a room")
	// ErrRecipientOffline is the soft failure of a direct message.
	ErrRecipientOffline = errors.New("recipient is offline")
	// ErrRoomNotFound should not surface in normal flow; the router always
	// ensures a room before appending to it.
	ErrRoomNotFound     = errors.New("room not found")
	ErrSessionExists    = errors.New("session already registered for user")
	ErrUnknownEvent     = errors.New("unknown event")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrRoomNameRequired = errors.New("room name is required")
	ErrRateLimited      = errors.New("too many events, slow down")
	ErrHubStopped       = errors.New("chat hub is not running")
)
