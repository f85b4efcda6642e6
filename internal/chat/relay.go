package chat

import (
	"strings"
	"time"
)

// Status is the outcome of a direct message.
type Status int

const (
	Delivered Status = iota
	RecipientOffline
)

func (s Status) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "recipient_offline"
}

// Relay delivers point-to-point messages between live sessions. There is
// no queueing: an offline recipient means the message is dropped.
type Relay struct {
	registry *Registry
}

func NewRelay(registry *Registry) *Relay {
	return &Relay{registry: registry}
}

// Send addresses body from the sender to toUsername.
func (r *Relay) Send(from *Session, toUsername, body string, at time.Time) (Status, []Delivery) {
	to, ok := r.registry.ByUsername(strings.TrimSpace(toUsername))
	if !ok {
		return RecipientOffline, nil
	}
	dm := DirectMessage{From: from.Username, To: to.Username, Body: body, Timestamp: at}
	return Delivered, []Delivery{{Targets: []string{to.ConnID}, Event: EventPrivateRecv, Payload: dm}}
}
