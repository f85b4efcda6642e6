package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"netchat/internal/identity"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Must be less than pongWait.
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	ID         string
	UserID     string
	Username   string
	RemoteAddr string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte // closed by the hub only
	limiter *rate.Limiter
}

func newClient(h *Hub, conn *websocket.Conn, id identity.Identity, remoteAddr string) *Client {
	c := &Client{
		ID:         uuid.NewString(),
		UserID:     id.UserID,
		Username:   id.Username,
		RemoteAddr: remoteAddr,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.opts.SendBuffer),
	}
	if h.opts.RateBurst > 0 && h.opts.RateInterval > 0 {
		every := h.opts.RateInterval / time.Duration(h.opts.RateBurst)
		c.limiter = rate.NewLimiter(rate.Every(every), h.opts.RateBurst)
	}
	return c
}

func (c *Client) session() Session {
	return Session{ConnID: c.ID, UserID: c.UserID, Username: c.Username, RemoteAddr: c.RemoteAddr}
}

// ReadPump pumps frames from the connection to the hub. It owns the read
// side and unregisters the client when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.unregister()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read", "user_id", c.UserID, "conn", c.ID, "error", err)
			}
			return
		}

		in := Inbound{Client: c}
		switch {
		case c.limiter != nil && !c.limiter.Allow():
			in.Err = ErrRateLimited
		default:
			if err := json.Unmarshal(data, &in.Envelope); err != nil || in.Envelope.Event == "" {
				in.Err = ErrInvalidPayload
			}
		}

		select {
		case c.hub.Inbound <- in:
		case <-c.hub.done:
			return
		}
	}
}

func (c *Client) unregister() {
	select {
	case c.hub.Unregister <- c:
	case <-c.hub.done:
	}
}

// WritePump pumps frames from the hub to the connection, one event per
// websocket message, and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
