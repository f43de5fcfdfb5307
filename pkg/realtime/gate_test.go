package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arcane/pkg/session"

	"github.com/gorilla/websocket"
)

func newTestGate(t *testing.T) (*Gate, *session.Session, *httptest.Server) {
	t.Helper()

	sessions := session.NewManager(nil, 0, time.Second)
	t.Cleanup(sessions.Close)

	sess, err := sessions.Create("alice", []string{"user"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	gate := NewGate(sessions)
	srv := httptest.NewServer(http.HandlerFunc(gate.HandleWS))
	t.Cleanup(srv.Close)

	return gate, sess, srv
}

func wsURL(srv *httptest.Server, csrf string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if csrf != "" {
		url += "?csrftoken=" + csrf
	}
	return url
}

func dial(t *testing.T, url, sessionID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	header := http.Header{}
	if sessionID != "" {
		header.Set("Cookie", "sessionId="+sessionID)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

// TestHandshakeRejectsMissingCookie verifies a connection without a session
// cookie is refused
func TestHandshakeRejectsMissingCookie(t *testing.T) {
	_, sess, srv := newTestGate(t)

	_, resp, err := dial(t, wsURL(srv, sess.CSRFToken), "")
	if err == nil {
		t.Fatal("Dial should fail without a cookie")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
}

// TestHandshakeRejectsWrongCsrf verifies a valid cookie with a wrong token
// is refused
func TestHandshakeRejectsWrongCsrf(t *testing.T) {
	_, sess, srv := newTestGate(t)

	_, resp, err := dial(t, wsURL(srv, "wrong-token"), sess.ID)
	if err == nil {
		t.Fatal("Dial should fail with a wrong CSRF token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 response, got %+v", resp)
	}
}

// TestHandshakeAdmitsValidPair verifies cookie plus token admits the
// connection
func TestHandshakeAdmitsValidPair(t *testing.T) {
	_, sess, srv := newTestGate(t)

	ws, _, err := dial(t, wsURL(srv, sess.CSRFToken), sess.ID)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	ws.Close()
}

// TestDispatchByEvent verifies messages reach the handler registered for
// their event
func TestDispatchByEvent(t *testing.T) {
	gate, sess, srv := newTestGate(t)

	received := make(chan string, 1)
	gate.Handle("ping", func(c *Conn, data json.RawMessage) {
		var s string
		_ = json.Unmarshal(data, &s)
		received <- s
	})

	ws, _, err := dial(t, wsURL(srv, sess.CSRFToken), sess.ID)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(map[string]any{"event": "ping", "data": "hello"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Errorf("Expected hello, got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handler not invoked")
	}
}

// TestBroadcastReachesClient verifies server-pushed events arrive framed as
// event envelopes
func TestBroadcastReachesClient(t *testing.T) {
	gate, sess, srv := newTestGate(t)

	connected := make(chan struct{})
	gate.OnConnect(func(c *Conn) { close(connected) })

	ws, _, err := dial(t, wsURL(srv, sess.CSRFToken), sess.ID)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect not invoked")
	}

	gate.Broadcast("refresh", "now")

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Event != "refresh" {
		t.Errorf("Expected refresh event, got %s", msg.Event)
	}
	var data string
	if err := json.Unmarshal(msg.Data, &data); err != nil || data != "now" {
		t.Errorf("Expected now, got %s", msg.Data)
	}
}

// TestConnBoundToSession verifies the admitted connection carries its
// authorizing session
func TestConnBoundToSession(t *testing.T) {
	gate, sess, srv := newTestGate(t)

	got := make(chan string, 1)
	gate.OnConnect(func(c *Conn) { got <- c.Session().Username })

	ws, _, err := dial(t, wsURL(srv, sess.CSRFToken), sess.ID)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer ws.Close()

	select {
	case username := <-got:
		if username != "alice" {
			t.Errorf("Expected alice, got %s", username)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect not invoked")
	}
}
