package server

import (
	"encoding/json"

	"arcane/pkg/logger"
	"arcane/pkg/realtime"
)

// termBridge forwards terminal output to one realtime connection as
// "terminal data" events
type termBridge struct {
	conn *realtime.Conn
}

// TerminalData implements terminal.Subscriber
func (b *termBridge) TerminalData(id int, data []byte) {
	err := b.conn.Send("terminal data", map[string]any{
		"id":   id,
		"data": string(data),
	})
	if err != nil {
		logger.Get().DebugWith("terminal data send failed", "id", id, "error", err)
	}
}

// registerRealtime wires the websocket message handlers to the terminal
// multiplexer. Attach is the only ownership-checked operation; key, resize
// and close act on any live id, and dead ids are no-ops everywhere.
func (s *Server) registerRealtime() {
	s.gate.OnConnect(func(c *realtime.Conn) {
		b := &termBridge{conn: c}
		s.bmu.Lock()
		s.bridges[c] = b
		s.bmu.Unlock()
	})

	s.gate.OnDisconnect(func(c *realtime.Conn) {
		s.bmu.Lock()
		b := s.bridges[c]
		delete(s.bridges, c)
		s.bmu.Unlock()

		if b != nil {
			s.mux.Detach(b)
		}
	})

	s.gate.Handle("terminal attach", func(c *realtime.Conn, data json.RawMessage) {
		var msg struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}

		s.bmu.Lock()
		b := s.bridges[c]
		s.bmu.Unlock()
		if b == nil {
			return
		}

		s.mux.Attach(msg.ID, c.Session().Username, b)
	})

	s.gate.Handle("terminal key", func(c *realtime.Conn, data json.RawMessage) {
		var msg struct {
			ID  int    `json:"id"`
			Key string `json:"key"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}

		s.mux.Write(msg.ID, []byte(msg.Key))
	})

	s.gate.Handle("terminal resize", func(c *realtime.Conn, data json.RawMessage) {
		var msg struct {
			ID   int    `json:"id"`
			Cols uint16 `json:"cols"`
			Rows uint16 `json:"rows"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if msg.Cols == 0 || msg.Rows == 0 {
			return
		}

		s.mux.Resize(msg.ID, msg.Cols, msg.Rows)
	})

	s.gate.Handle("terminal close", func(c *realtime.Conn, data json.RawMessage) {
		var msg struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}

		s.mux.Close(msg.ID)
	})
}
