// Package realtime authorizes websocket connections against the session
// table and dispatches their messages to registered handlers.
package realtime

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"

	"arcane/pkg/logger"
	"arcane/pkg/session"

	"github.com/gorilla/websocket"
)

// HandlerFunc handles one realtime message event
type HandlerFunc func(c *Conn, data json.RawMessage)

// envelope is the wire format for messages in both directions
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gate admits websocket connections. Authorization happens once, at
// handshake time: the session cookie must name a known session and the
// csrftoken query parameter must match its anti-forgery token. This is a
// direct table lookup, deliberately narrower than the HTTP path — it does
// not refresh last-used or purge logged-out entries.
type Gate struct {
	sessions *session.Manager
	upgrader websocket.Upgrader

	mu           sync.RWMutex
	conns        map[*Conn]struct{}
	handlers     map[string]HandlerFunc
	onConnect    []func(*Conn)
	onDisconnect []func(*Conn)
}

// NewGate creates a realtime gate over the given session table
func NewGate(sessions *session.Manager) *Gate {
	return &Gate{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a message event. Registration happens at
// wiring time, before any connection is admitted.
func (g *Gate) Handle(event string, fn HandlerFunc) {
	g.handlers[event] = fn
}

// OnConnect registers a callback invoked for every admitted connection
func (g *Gate) OnConnect(fn func(*Conn)) {
	g.onConnect = append(g.onConnect, fn)
}

// OnDisconnect registers a callback invoked when a connection goes away
func (g *Gate) OnDisconnect(fn func(*Conn)) {
	g.onDisconnect = append(g.onDisconnect, fn)
}

// HandleWS authorizes and serves one websocket connection. Rejected
// connections get a 401 with no structured body and no further
// interaction.
func (g *Gate) HandleWS(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("sessionId")
	if err != nil {
		http.Error(w, "Authentication error", http.StatusUnauthorized)
		return
	}
	csrf := r.URL.Query().Get("csrftoken")

	sess, ok := g.sessions.Lookup(cookie.Value)
	if !ok || subtle.ConstantTimeCompare([]byte(csrf), []byte(sess.CSRFToken)) != 1 {
		http.Error(w, "Authentication error", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().WarnWith("websocket upgrade failed", "error", err)
		return
	}

	c := &Conn{ws: ws, session: sess}

	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()

	logger.Get().InfoWith("realtime connected", "user", sess.Username)

	for _, fn := range g.onConnect {
		fn(c)
	}

	g.readLoop(c)

	g.mu.Lock()
	delete(g.conns, c)
	g.mu.Unlock()

	for _, fn := range g.onDisconnect {
		fn(c)
	}

	ws.Close()
	logger.Get().InfoWith("realtime disconnected", "user", sess.Username)
}

// readLoop dispatches incoming messages in arrival order. Per-connection
// ordering is preserved because each connection has exactly one reader.
func (g *Gate) readLoop(c *Conn) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Get().DebugWith("websocket read error", "error", err)
			}
			return
		}

		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Get().DebugWith("malformed realtime message", "error", err)
			continue
		}

		if fn, ok := g.handlers[msg.Event]; ok {
			fn(c, msg.Data)
		}
	}
}

// Broadcast sends an event to every connected client
func (g *Gate) Broadcast(event string, data any) {
	g.mu.RLock()
	conns := make([]*Conn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(event, data); err != nil {
			logger.Get().DebugWith("broadcast send failed", "user", c.session.Username, "error", err)
		}
	}
}
