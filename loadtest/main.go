package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	pairs    = flag.Int("pairs", 50, "number of user pairs; each pair shares a room")
	msgCount = flag.Int("messages", 20, "messages per user")
	pause    = flag.Duration("pause", 10*time.Millisecond, "pause between messages")

	sent, received, failures atomic.Int64
)

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger.Info("🔥 starting stress test", "users", *pairs*2, "messages_each", *msgCount)

	start := time.Now()
	var wg sync.WaitGroup
	// Pairs: user 0a and 0b talk in room "load-0", 1a and 1b in "load-1"...
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(logger, pairID)
		}(i)
	}
	wg.Wait()

	logger.Info("✅ load test complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"sent", sent.Load(), "received", received.Load(), "failures", failures.Load())
}

func runPair(logger *slog.Logger, pairID int) {
	room := fmt.Sprintf("load-%d", pairID)
	users := []string{fmt.Sprintf("u_%d_a", pairID), fmt.Sprintf("u_%d_b", pairID)}

	var wg sync.WaitGroup
	for _, username := range users {
		token, err := authenticate(username, "password123")
		if err != nil {
			failures.Add(1)
			logger.Warn("❌ auth failed", "user", username, "error", err)
			continue
		}
		wg.Add(1)
		go func(username, token string) {
			defer wg.Done()
			spamRoom(logger, token, room, username)
		}(username, token)
	}
	wg.Wait()
}

// authenticate registers (ignores error if exists) and logs in.
func authenticate(username, password string) (string, error) {
	resp, err := postJSON("/register", map[string]string{
		"username":        username,
		"email":           username + "@loadtest.local",
		"password":        password,
		"confirmPassword": password,
	})
	if err == nil {
		resp.Body.Close()
	}

	resp, err = postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}

	var data AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	return data.Token, nil
}

func spamRoom(logger *slog.Logger, token, room, user string) {
	u, err := url.Parse(*baseURL)
	if err != nil {
		failures.Add(1)
		return
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		failures.Add(1)
		logger.Warn("❌ ws connect failed", "user", user, "error", err)
		return
	}
	defer conn.Close()

	// Count whatever the server pushes until we hang up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var in struct {
				Event string `json:"event"`
			}
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			if in.Event == "message:new" {
				received.Add(1)
			}
		}
	}()

	if err := conn.WriteJSON(envelope{Event: "room:join", Data: map[string]string{"roomName": room}}); err != nil {
		failures.Add(1)
		return
	}

	for i := 0; i < *msgCount; i++ {
		msg := envelope{Event: "message:send", Data: map[string]string{
			"message": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
			"room":    room,
		}}
		if err := conn.WriteJSON(msg); err != nil {
			failures.Add(1)
			logger.Warn("❌ send failed", "user", user, "error", err)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(*pause)
	}

	// Give the last broadcasts a moment before closing.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	<-done
	logger.Debug("finished", "user", user, "messages", *msgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
