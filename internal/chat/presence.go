package chat

import (
	"slices"
	"time"
)

// Tracker derives presence lists from the Registry and keeps the transient
// per-room typing flags. Typing state never lives on the Room itself.
type Tracker struct {
	registry *Registry
	typing   map[string]map[string]time.Time // room -> username -> last keystroke
}

func NewTracker(registry *Registry) *Tracker {
	return &Tracker{
		registry: registry,
		typing:   make(map[string]map[string]time.Time),
	}
}

// Snapshot lists every registered session in admission order.
func (t *Tracker) Snapshot() []PresenceEntry {
	out := make([]PresenceEntry, 0, t.registry.Len())
	t.registry.Each(func(s *Session) {
		e := PresenceEntry{UserID: s.UserID, Username: s.Username}
		if s.InRoom() {
			room := s.Room
			e.Room = &room
		}
		out = append(out, e)
	})
	return out
}

// Broadcast is the users:update delivery for every live connection.
func (t *Tracker) Broadcast() Delivery {
	return Delivery{Targets: t.registry.ConnIDs(), Event: EventUsersUpdate, Payload: t.Snapshot()}
}

// MarkTyping flags the session's user as typing in its current room and
// tells the other room members. Room-less sessions are ignored.
func (t *Tracker) MarkTyping(s *Session, at time.Time) []Delivery {
	if !s.InRoom() {
		return nil
	}
	users, ok := t.typing[s.Room]
	if !ok {
		users = make(map[string]time.Time)
		t.typing[s.Room] = users
	}
	users[s.Username] = at
	return t.notify(EventTyping, s.Room, s.Username, s.ConnID)
}

// ClearTyping drops the flag for the session's current room. Nothing is
// announced when the user was not typing.
func (t *Tracker) ClearTyping(s *Session) []Delivery {
	if !s.InRoom() || !t.clear(s.Room, s.Username) {
		return nil
	}
	return t.notify(EventStopTyping, s.Room, s.Username, s.ConnID)
}

func (t *Tracker) IsTyping(room, username string) bool {
	_, ok := t.typing[room][username]
	return ok
}

// Typing lists who is typing in room, sorted.
func (t *Tracker) Typing(room string) []string {
	users := make([]string, 0, len(t.typing[room]))
	for u := range t.typing[room] {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

// Expire clears flags whose last keystroke is before cutoff.
func (t *Tracker) Expire(cutoff time.Time) []Delivery {
	var out []Delivery
	for _, room := range t.rooms() {
		for _, username := range t.Typing(room) {
			if !t.typing[room][username].Before(cutoff) {
				continue
			}
			t.clear(room, username)
			exclude := ""
			if s, ok := t.registry.ByUsername(username); ok {
				exclude = s.ConnID
			}
			out = append(out, t.notify(EventStopTyping, room, username, exclude)...)
		}
	}
	return out
}

func (t *Tracker) clear(room, username string) bool {
	users, ok := t.typing[room]
	if !ok {
		return false
	}
	if _, ok := users[username]; !ok {
		return false
	}
	delete(users, username)
	if len(users) == 0 {
		delete(t.typing, room)
	}
	return true
}

func (t *Tracker) rooms() []string {
	rooms := make([]string, 0, len(t.typing))
	for r := range t.typing {
		rooms = append(rooms, r)
	}
	slices.Sort(rooms)
	return rooms
}

func (t *Tracker) notify(event, room, username, exclude string) []Delivery {
	targets := t.registry.RoomConnIDs(room, exclude)
	if len(targets) == 0 {
		return nil
	}
	return []Delivery{{
		Targets: targets,
		Event:   event,
		Payload: TypingNotice{Username: username, Room: room},
	}}
}
