package chat

// Registry tracks every live session keyed by user id.
//
// It is not safe for concurrent use: the Hub goroutine is its only writer.
type Registry struct {
	sessions map[string]*Session
	order    []string // user ids in admission order
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Admit registers a new session. It fails with ErrSessionExists when the
// user already has one; the caller decides the duplicate-session policy.
func (r *Registry) Admit(s Session) (*Session, error) {
	if _, ok := r.sessions[s.UserID]; ok {
		return nil, ErrSessionExists
	}
	sess := s
	r.sessions[s.UserID] = &sess
	r.order = append(r.order, s.UserID)
	return &sess, nil
}

func (r *Registry) Get(userID string) (*Session, bool) {
	s, ok := r.sessions[userID]
	return s, ok
}

// SetRoom records the session's current room ("" clears it). Unknown users
// are ignored.
func (r *Registry) SetRoom(userID, room string) {
	if s, ok := r.sessions[userID]; ok {
		s.Room = room
	}
}

func (r *Registry) Remove(userID string) (*Session, bool) {
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return s, true
}

// ByUsername finds the live session for a username.
func (r *Registry) ByUsername(username string) (*Session, bool) {
	for _, id := range r.order {
		if s := r.sessions[id]; s.Username == username {
			return s, true
		}
	}
	return nil, false
}

// Each visits sessions in admission order.
func (r *Registry) Each(fn func(*Session)) {
	for _, id := range r.order {
		fn(r.sessions[id])
	}
}

func (r *Registry) Len() int { return len(r.sessions) }

// ConnIDs returns every live connection id.
func (r *Registry) ConnIDs() []string {
	ids := make([]string, 0, len(r.order))
	r.Each(func(s *Session) { ids = append(ids, s.ConnID) })
	return ids
}

// RoomConnIDs returns the connections currently in room, minus exclude.
func (r *Registry) RoomConnIDs(room, exclude string) []string {
	var ids []string
	r.Each(func(s *Session) {
		if s.Room == room && s.ConnID != exclude {
			ids = append(ids, s.ConnID)
		}
	})
	return ids
}
