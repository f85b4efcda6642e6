package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Router turns inbound events into Registry/Directory mutations and the
// deliveries that announce them. It is the single writer of both; the Hub
// calls it from one goroutine, so no transition ever interleaves with
// another.
type Router struct {
	sessions *Registry
	rooms    *Directory
	presence *Tracker
	relay    *Relay
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type RouterOption func(*Router)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		r.now = now
		r.rooms.now = now
	}
}

// WithIDGenerator overrides the message id source.
func WithIDGenerator(fn func() string) RouterOption {
	return func(r *Router) { r.newID = fn }
}

// NewRouter builds a router owning a fresh Registry and Directory.
// historyLimit caps each room's log (0 = unbounded).
func NewRouter(historyLimit int, logger *slog.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	sessions := NewRegistry()
	r := &Router{
		sessions: sessions,
		rooms:    NewDirectory(historyLimit),
		presence: NewTracker(sessions),
		relay:    NewRelay(sessions),
		logger:   logger,
		now:      time.Now,
		newID:    newMessageID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newMessageID returns a time ordered UUIDv7 string.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (r *Router) Sessions() *Registry { return r.sessions }

func (r *Router) Rooms() *Directory { return r.rooms }

func (r *Router) Presence() *Tracker { return r.presence }

// session returns the registered session only if it still belongs to connID;
// events from a superseded connection are stale.
func (r *Router) session(userID, connID string) (*Session, bool) {
	s, ok := r.sessions.Get(userID)
	if !ok || s.ConnID != connID {
		return nil, false
	}
	return s, true
}

// ---------------------------------------------
// 🔁 Connection lifecycle
// ---------------------------------------------

// Connect admits an authenticated session. A newer connection for the same
// user supersedes the old one, which is told why and then closed.
func (r *Router) Connect(s Session) []Delivery {
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = r.now()
	}

	var out []Delivery
	if _, err := r.sessions.Admit(s); errors.Is(err, ErrSessionExists) {
		old, _ := r.sessions.Get(s.UserID)
		r.logger.Info("superseding session",
			"user_id", s.UserID, "old_conn", old.ConnID, "new_conn", s.ConnID)
		out = append(out, r.supersede(old)...)
		if _, err := r.sessions.Admit(s); err != nil {
			r.logger.Error("admit after supersede", "user_id", s.UserID, "error", err)
			return out
		}
	}

	r.logger.Info("session admitted", "user_id", s.UserID, "username", s.Username, "conn", s.ConnID, "remote", s.RemoteAddr)
	return append(out, r.presence.Broadcast())
}

func (r *Router) supersede(old *Session) []Delivery {
	out := []Delivery{{
		Targets: []string{old.ConnID},
		Event:   EventReplaced,
		Payload: ErrorNotice{Message: "Signed in from another connection"},
		Close:   true,
	}}
	out = append(out, r.vacate(old, "%s disconnected")...)
	r.sessions.Remove(old.UserID)
	return out
}

// Disconnect tears down a connection: implicit leave, removal, presence
// rebroadcast. Unknown or already superseded connections are a no-op.
func (r *Router) Disconnect(userID, connID string) []Delivery {
	s, ok := r.session(userID, connID)
	if !ok {
		return nil
	}
	out := r.vacate(s, "%s disconnected")
	r.sessions.Remove(userID)
	r.logger.Info("session removed", "user_id", userID, "username", s.Username, "conn", connID)
	return append(out, r.presence.Broadcast())
}

// ---------------------------------------------
// 📥 Inbound events
// ---------------------------------------------

// Handle dispatches one inbound event and converts failures into an error
// event for the originating connection only.
func (r *Router) Handle(userID, connID string, env Envelope) []Delivery {
	out, err := r.Dispatch(userID, connID, env)
	if err == nil {
		return out
	}
	if errors.Is(err, ErrRoomNotFound) {
		r.logger.Error("room invariant violated", "event", env.Event, "user_id", userID, "error", err)
		return out
	}
	r.logger.Debug("event rejected", "event", env.Event, "user_id", userID, "error", err)
	return append(out, ErrorDelivery(connID, err))
}

// ErrorDelivery addresses an error event to a single connection.
func ErrorDelivery(connID string, err error) Delivery {
	return Delivery{Targets: []string{connID}, Event: EventError, Payload: ErrorNotice{Message: err.Error()}}
}

// Dispatch routes env to its transition.
func (r *Router) Dispatch(userID, connID string, env Envelope) ([]Delivery, error) {
	s, ok := r.session(userID, connID)
	if !ok {
		r.logger.Debug("dropping event from stale connection", "event", env.Event, "conn", connID)
		return nil, nil
	}

	switch env.Event {
	case EventJoin:
		var p joinPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return r.Join(s, p.RoomName)
	case EventSend:
		var p sendPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return r.Send(s, p.Message)
	case EventGetMessages:
		var p roomPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return r.History(s, p.Room), nil
	case EventGetRooms:
		return r.ListRooms(s), nil
	case EventLeave:
		return r.Leave(s), nil
	case EventTyping:
		return r.presence.MarkTyping(s, r.now()), nil
	case EventStopTyping:
		return r.presence.ClearTyping(s), nil
	case EventPrivateSend:
		var p privatePayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return r.PrivateMessage(s, p.To, p.Message)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Join moves the session into room, leaving its previous room first.
// Joining the room it already occupies is a no-op.
func (r *Router) Join(s *Session, room string) ([]Delivery, error) {
	name := strings.TrimSpace(room)
	if name == "" {
		return nil, ErrRoomNameRequired
	}
	if s.Room == name {
		return nil, nil
	}

	out := r.vacate(s, "%s left the room")

	r.rooms.Join(name, s.Username)
	r.sessions.SetRoom(s.UserID, name)

	members := r.sessions.RoomConnIDs(name, "")
	out = append(out,
		Delivery{Targets: members, Event: EventMessageNew, Payload: r.systemMessage(name, s.Username+" joined the room")},
		Delivery{Targets: members, Event: EventRoomInfo, Payload: r.roomInfo(name)},
		r.presence.Broadcast(),
	)
	r.logger.Debug("joined room", "username", s.Username, "room", name)
	return out, nil
}

// Leave takes the session out of its room, if any.
func (r *Router) Leave(s *Session) []Delivery {
	if !s.InRoom() {
		return nil
	}
	out := r.vacate(s, "%s left the room")
	return append(out, r.presence.Broadcast())
}

// vacate removes s from its current room and announces it to whoever is
// left. notice is a format string taking the username.
func (r *Router) vacate(s *Session, notice string) []Delivery {
	if !s.InRoom() {
		return nil
	}
	room := s.Room

	out := r.presence.ClearTyping(s)
	r.rooms.Leave(room, s.Username)
	r.sessions.SetRoom(s.UserID, "")

	remaining := r.sessions.RoomConnIDs(room, "")
	if len(remaining) == 0 {
		return out
	}
	return append(out,
		Delivery{Targets: remaining, Event: EventMessageNew, Payload: r.systemMessage(room, fmt.Sprintf(notice, s.Username))},
		Delivery{Targets: remaining, Event: EventRoomInfo, Payload: r.roomInfo(room)},
	)
}

// Send appends a user message to the session's room and fans it out to
// every member, sender included.
func (r *Router) Send(s *Session, body string) ([]Delivery, error) {
	if !s.InRoom() {
		return nil, ErrNotInRoom
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	out := r.presence.ClearTyping(s)

	r.rooms.Ensure(s.Room)
	msg, err := r.rooms.Append(s.Room, Message{
		ID:        r.newID(),
		UserID:    s.UserID,
		Username:  s.Username,
		Body:      body,
		Timestamp: r.now(),
		Room:      s.Room,
		Kind:      KindUser,
	})
	if err != nil {
		return out, err
	}

	return append(out, Delivery{
		Targets: r.sessions.RoomConnIDs(s.Room, ""),
		Event:   EventMessageNew,
		Payload: msg,
	}), nil
}

// History answers room:getMessages for the requester only. An empty room
// name means the session's current room.
func (r *Router) History(s *Session, room string) []Delivery {
	name := strings.TrimSpace(room)
	if name == "" {
		name = s.Room
	}
	return []Delivery{{
		Targets: []string{s.ConnID},
		Event:   EventRoomMessages,
		Payload: RoomMessages{Room: name, Messages: r.rooms.History(name)},
	}}
}

func (r *Router) ListRooms(s *Session) []Delivery {
	return []Delivery{{
		Targets: []string{s.ConnID},
		Event:   EventRoomsList,
		Payload: RoomList{Rooms: r.rooms.List()},
	}}
}

// PrivateMessage relays body to the user named to.
func (r *Router) PrivateMessage(s *Session, to, body string) ([]Delivery, error) {
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidPayload)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	status, out := r.relay.Send(s, to, body, r.now())
	if status == RecipientOffline {
		return nil, ErrRecipientOffline
	}
	return out, nil
}

// ---------------------------------------------
// ⏱️ Timers & read models
// ---------------------------------------------

// ExpireTyping clears typing flags older than maxAge.
func (r *Router) ExpireTyping(maxAge time.Duration) []Delivery {
	return r.presence.Expire(r.now().Add(-maxAge))
}

// RoomsBroadcast pushes the directory summary to every connection.
func (r *Router) RoomsBroadcast() []Delivery {
	return []Delivery{{Targets: r.sessions.ConnIDs(), Event: EventRoomsList, Payload: RoomList{Rooms: r.rooms.List()}}}
}

func (r *Router) roomInfo(name string) RoomInfo {
	room, ok := r.rooms.Get(name)
	if !ok {
		return RoomInfo{Name: name, Users: []string{}}
	}
	return room.Info()
}

func (r *Router) systemMessage(room, body string) Message {
	return Message{
		ID:        r.newID(),
		Username:  SystemUsername,
		Body:      body,
		Timestamp: r.now(),
		Room:      room,
		Kind:      KindSystem,
	}
}
