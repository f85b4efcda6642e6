package chat

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------
// 🗂️ Domain Models
// ---------------------------------------------

// Session is the server side state of one authenticated live connection.
type Session struct {
	ConnID      string    `json:"-"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Room        string    `json:"room"` // "" = room-less
	ConnectedAt time.Time `json:"connectedAt"`
	RemoteAddr  string    `json:"-"`
}

// InRoom reports whether the session currently occupies a room.
func (s *Session) InRoom() bool { return s.Room != "" }

type MessageKind string

const (
	KindUser   MessageKind = "user"
	KindSystem MessageKind = "system"
)

// SystemUsername is the author shown on join/leave/disconnect notices.
const SystemUsername = "System"

// Message is a room scoped chat entry. It is never mutated after creation.
type Message struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId,omitempty"` // empty for system messages
	Username  string      `json:"username"`
	Body      string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Room      string      `json:"room"`
	Kind      MessageKind `json:"type"`
}

// DirectMessage is relayed to a live recipient and never stored.
type DirectMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ---------------------------------------------
// 📤 Outbound payloads
// ---------------------------------------------

type PresenceEntry struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Room     *string `json:"room"`
}

type RoomSummary struct {
	Name     string `json:"name"`
	Users    int    `json:"users"`
	Messages int    `json:"messages"`
}

type RoomList struct {
	Rooms []RoomSummary `json:"rooms"`
}

type RoomInfo struct {
	Name         string   `json:"name"`
	Users        []string `json:"users"`
	MessageCount int      `json:"messageCount"`
}

type RoomMessages struct {
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type TypingNotice struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type ErrorNotice struct {
	Message string `json:"message"`
}

// ---------------------------------------------
// 🔌 Wire envelope
// ---------------------------------------------

// Inbound event names (client -> server).
const (
	EventJoin        = "room:join"
	EventSend        = "message:send"
	EventGetMessages = "room:getMessages"
	EventGetRooms    = "rooms:get"
	EventLeave       = "room:leave"
	EventTyping      = "user:typing"
	EventStopTyping  = "user:stopTyping"
	EventPrivateSend = "pm:send"
)

// Outbound event names (server -> client).
const (
	EventUsersUpdate  = "users:update"
	EventMessageNew   = "message:new"
	EventRoomsList    = "rooms:list"
	EventRoomInfo     = "room:info"
	EventRoomMessages = "room:messages"
	EventPrivateRecv  = "pm:received"
	EventError        = "error"
	EventReplaced     = "session:replaced"
)

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinPayload struct {
	RoomName string `json:"roomName"`
}

type sendPayload struct {
	Message string `json:"message"`
	Room    string `json:"room"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type privatePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Delivery is one outbound event addressed to a set of connections. The
// router produces deliveries; the hub owns getting them onto the wire.
type Delivery struct {
	Targets []string // connection ids
	Event   string
	Payload any
	// Close asks the hub to drop the target connections once the event is queued.
	Close bool
}
