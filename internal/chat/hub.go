package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"netchat/internal/identity"
)

// Options tunes the hub and every client it creates.
type Options struct {
	MaxMessageSize   int64
	SendBuffer       int
	TypingTimeout    time.Duration
	RoomListInterval time.Duration
	// RateBurst events per RateInterval; RateBurst <= 0 disables limiting.
	RateBurst    int
	RateInterval time.Duration
}

// Inbound is one event read off a connection. Err is set when the frame was
// rejected before it could be decoded; the hub reports it back to the sender.
type Inbound struct {
	Client   *Client
	Envelope Envelope
	Err      error
}

// Hub is the only goroutine that touches the Router. Pumps talk to it over
// channels, and HTTP handlers read state through queries.
type Hub struct {
	router  *Router
	opts    Options
	logger  *slog.Logger
	clients map[string]*Client // connID -> client

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan Inbound
	queries    chan func(*Router)

	done chan struct{}
}

func NewHub(router *Router, opts Options, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	return &Hub{
		router:     router,
		opts:       opts,
		logger:     logger,
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan Inbound, 64),
		queries:    make(chan func(*Router)),
		done:       make(chan struct{}),
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// NewClient wraps an upgraded connection for the given identity. The client
// is not registered until the caller sends it on Register.
func (h *Hub) NewClient(conn *websocket.Conn, id identity.Identity, remoteAddr string) *Client {
	return newClient(h, conn, id, remoteAddr)
}

// Run serves the hub until ctx is cancelled. Every client still attached is
// closed on the way out.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var sweep, roomList <-chan time.Time
	if h.opts.TypingTimeout > 0 {
		t := time.NewTicker(sweepPeriod(h.opts.TypingTimeout))
		defer t.Stop()
		sweep = t.C
	}
	if h.opts.RoomListInterval > 0 {
		t := time.NewTicker(h.opts.RoomListInterval)
		defer t.Stop()
		roomList = t.C
	}

	h.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case c := <-h.Register:
			h.clients[c.ID] = c
			h.deliver(h.router.Connect(c.session()))

		case c := <-h.Unregister:
			h.drop(c)

		case in := <-h.Inbound:
			if cur, ok := h.clients[in.Client.ID]; !ok || cur != in.Client {
				continue
			}
			if in.Err != nil {
				h.deliver([]Delivery{ErrorDelivery(in.Client.ID, in.Err)})
				continue
			}
			h.deliver(h.router.Handle(in.Client.UserID, in.Client.ID, in.Envelope))

		case q := <-h.queries:
			q(h.router)

		case <-sweep:
			h.deliver(h.router.ExpireTyping(h.opts.TypingTimeout))

		case <-roomList:
			h.deliver(h.router.RoomsBroadcast())
		}
	}
}

func sweepPeriod(timeout time.Duration) time.Duration {
	if p := timeout / 2; p > 0 {
		return p
	}
	return timeout
}

// drop detaches c and runs the disconnect transition. A client the hub has
// already let go of (evicted, superseded) is ignored.
func (h *Hub) drop(c *Client) {
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		return
	}
	h.detach(c)
	h.deliver(h.router.Disconnect(c.UserID, c.ID))
}

func (h *Hub) detach(c *Client) {
	delete(h.clients, c.ID)
	close(c.send)
}

// deliver writes each delivery to its targets. A client whose buffer is full
// is evicted and disconnected; the resulting notices join the queue.
func (h *Hub) deliver(queue []Delivery) {
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if len(d.Targets) == 0 {
			continue
		}

		frame, err := encodeFrame(d.Event, d.Payload)
		if err != nil {
			h.logger.Error("encode outbound event", "event", d.Event, "error", err)
			continue
		}

		for _, id := range d.Targets {
			c, ok := h.clients[id]
			if !ok {
				continue
			}
			select {
			case c.send <- frame:
			default:
				h.logger.Warn("evicting slow consumer", "user_id", c.UserID, "conn", c.ID)
				h.detach(c)
				queue = append(queue, h.router.Disconnect(c.UserID, c.ID)...)
				continue
			}
			if d.Close {
				h.detach(c)
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, c := range h.clients {
		h.detach(c)
	}
	h.logger.Info("hub stopped")
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, payload})
}

// ---------------------------------------------
// 🔎 Queries (run on the hub goroutine)
// ---------------------------------------------

func (h *Hub) query(ctx context.Context, fn func(*Router)) error {
	finished := make(chan struct{})
	wrapped := func(r *Router) {
		fn(r)
		close(finished)
	}

	select {
	case h.queries <- wrapped:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rooms summarises every room.
func (h *Hub) Rooms(ctx context.Context) ([]RoomSummary, error) {
	var out []RoomSummary
	err := h.query(ctx, func(r *Router) { out = r.Rooms().List() })
	return out, err
}

// History returns a room's log. ok is false when the room does not exist.
func (h *Hub) History(ctx context.Context, room string) (msgs []Message, ok bool, err error) {
	err = h.query(ctx, func(r *Router) {
		_, ok = r.Rooms().Get(room)
		msgs = r.Rooms().History(room)
	})
	return msgs, ok, err
}

// Online lists the connected users.
func (h *Hub) Online(ctx context.Context) ([]PresenceEntry, error) {
	var out []PresenceEntry
	err := h.query(ctx, func(r *Router) { out = r.Presence().Snapshot() })
	return out, err
}
