package realtime

import (
	"encoding/json"
	"sync"

	"arcane/pkg/session"

	"github.com/gorilla/websocket"
)

// Conn is an admitted realtime connection, bound 1:1 to the session that
// authorized its handshake for its whole lifetime.
type Conn struct {
	ws      *websocket.Conn
	session *session.Session
	mu      sync.Mutex // serializes writes
}

// Session returns the authorizing session
func (c *Conn) Session() *session.Session {
	return c.session
}

// Send writes one event to the connection
func (c *Conn) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(envelope{Event: event, Data: payload})
}
