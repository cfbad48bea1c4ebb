// Package websocket pushes live state updates to planner clients.
//
// Clients open a WebSocket connection to:
//
//	GET /ws?token=<session token>
//
// The server polls the session's revision counter every 200 ms and pushes a
// full state snapshot whenever it changed, so the calendar, queue, and
// activity feed stay current without client-side refresh logic.
//
// Server → client frame:
//
//	{"type":"state","state":{...snapshot...}}
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/beeziehmf/threadyflow-app/internal/store"
)

// urlParse is an alias so the upgrader closure can call it without shadowing
// the url package import.
var urlParse = url.Parse

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin WebSocket upgrade requests.
	// A request is considered same-origin when its Origin header matches the
	// Host header (scheme-agnostic).  Requests without an Origin header
	// (e.g. from native clients/curl) are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client, allow
		}
		parsed, err := parseHost(origin)
		if err != nil {
			return false
		}
		return parsed == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := urlParse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// pollInterval bounds how stale a pushed snapshot can be.
const pollInterval = 200 * time.Millisecond

// Handler serves the WebSocket state-push endpoint.
type Handler struct {
	Store *store.Store
}

// stateFrame is the JSON structure the server sends to the client.
type stateFrame struct {
	Type  string         `json:"type"` // "state"
	State store.Snapshot `json:"state"`
}

// ServeHTTP upgrades the connection and starts the push loop. The session
// token travels in the query string because browsers cannot set headers on
// WebSocket upgrades.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sess, err := h.Store.Session(token)
	if err != nil {
		http.Error(w, "missing or invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Drain client frames so control messages (close, ping) are processed;
	// the push protocol itself is one-directional.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Initial snapshot, then push on every revision change.
	last := sess.Revision()
	if err := push(conn, sess); err != nil {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return // client disconnected
		case <-ticker.C:
			// The token may have been invalidated by a sign-out.
			if _, err := h.Store.Session(token); err != nil {
				return
			}
			rev := sess.Revision()
			if rev == last {
				continue
			}
			last = rev
			if err := push(conn, sess); err != nil {
				return
			}
		}
	}
}

func push(conn *gorillaws.Conn, sess *store.Session) error {
	data, err := json.Marshal(stateFrame{Type: "state", State: sess.Snapshot()})
	if err != nil {
		return err
	}
	return conn.WriteMessage(gorillaws.TextMessage, data)
}
