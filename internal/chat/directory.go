package chat

import (
	"slices"
	"time"
)

// Room is a named channel. Members are usernames in join order.
type Room struct {
	Name      string
	CreatedAt time.Time
	members   []string
	messages  []Message
}

func (r *Room) Members() []string { return slices.Clone(r.members) }

func (r *Room) MessageCount() int { return len(r.messages) }

func (r *Room) Info() RoomInfo {
	users := r.Members()
	if users == nil {
		users = []string{}
	}
	return RoomInfo{Name: r.Name, Users: users, MessageCount: len(r.messages)}
}

// Directory owns every room, its membership and its message log. Rooms are
// created on first use and never destroyed.
//
// Like Registry it is owned by the Hub goroutine.
type Directory struct {
	rooms map[string]*Room
	order []string
	// limit caps each room's log; 0 keeps everything.
	limit int
	now   func() time.Time
}

func NewDirectory(historyLimit int) *Directory {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &Directory{
		rooms: make(map[string]*Room),
		limit: historyLimit,
		now:   time.Now,
	}
}

// Ensure returns the named room, creating it if needed.
func (d *Directory) Ensure(name string) *Room {
	if r, ok := d.rooms[name]; ok {
		return r
	}
	r := &Room{Name: name, CreatedAt: d.now()}
	d.rooms[name] = r
	d.order = append(d.order, name)
	return r
}

func (d *Directory) Get(name string) (*Room, bool) {
	r, ok := d.rooms[name]
	return r, ok
}

// Join adds username to the room's member set. Joining twice is a no-op.
func (d *Directory) Join(name, username string) *Room {
	r := d.Ensure(name)
	if !slices.Contains(r.members, username) {
		r.members = append(r.members, username)
	}
	return r
}

// Leave removes username from the room. Missing rooms or members are ignored.
func (d *Directory) Leave(name, username string) {
	r, ok := d.rooms[name]
	if !ok {
		return
	}
	if i := slices.Index(r.members, username); i >= 0 {
		r.members = slices.Delete(r.members, i, i+1)
	}
}

// Append adds msg to the room's log, evicting the oldest entries once the
// retention limit is exceeded.
func (d *Directory) Append(name string, msg Message) (Message, error) {
	r, ok := d.rooms[name]
	if !ok {
		return Message{}, ErrRoomNotFound
	}
	r.messages = append(r.messages, msg)
	if d.limit > 0 && len(r.messages) > d.limit {
		r.messages = slices.Clone(r.messages[len(r.messages)-d.limit:])
	}
	return msg, nil
}

// List summarises rooms in creation order.
func (d *Directory) List() []RoomSummary {
	out := make([]RoomSummary, 0, len(d.order))
	for _, name := range d.order {
		r := d.rooms[name]
		out = append(out, RoomSummary{Name: name, Users: len(r.members), Messages: len(r.messages)})
	}
	return out
}

// History returns a copy of the room's log; an unknown room yields an empty
// slice rather than an error.
func (d *Directory) History(name string) []Message {
	r, ok := d.rooms[name]
	if !ok || len(r.messages) == 0 {
		return []Message{}
	}
	return slices.Clone(r.messages)
}
