package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// MockRealtimeServer is a minimal Phoenix channels server speaking the
// Supabase Realtime frames the change feed uses.
type MockRealtimeServer struct {
	*httptest.Server

	joins chan json.RawMessage
	push  chan []byte

	mu         sync.Mutex
	joinStatus string
	conns      map[*websocket.Conn]struct{}
	queries    []url.Values
}

type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

// NewMockRealtimeServer starts a server that is closed on test cleanup.
func NewMockRealtimeServer(t *testing.T) *MockRealtimeServer {
	t.Helper()
	m := &MockRealtimeServer{
		joinStatus: "ok",
		joins:      make(chan json.RawMessage, 16),
		push:       make(chan []byte, 16),
		conns:      make(map[*websocket.Conn]struct{}),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns[conn] = struct{}{}
		m.queries = append(m.queries, r.URL.Query())
		m.mu.Unlock()
		m.serve(conn)
	}))
	t.Cleanup(func() {
		m.CloseConnections()
		m.Close()
	})
	return m
}

func (m *MockRealtimeServer) serve(conn *websocket.Conn) {
	var writeMu sync.Mutex
	write := func(b []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, b)
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		_ = conn.Close()
	}()
	go func() {
		for {
			select {
			case <-done:
				return
			case b := <-m.push:
				if err := write(b); err != nil {
					return
				}
			}
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Event {
		case "phx_join":
			m.mu.Lock()
			status := m.joinStatus
			m.mu.Unlock()
			payload, _ := json.Marshal(map[string]any{"status": status, "response": map[string]any{}})
			reply, _ := json.Marshal(frame{Topic: f.Topic, Event: "phx_reply", Payload: payload, Ref: f.Ref, JoinRef: f.JoinRef})
			_ = write(reply)
			select {
			case m.joins <- f.Payload:
			default:
			}
		case "heartbeat":
			payload, _ := json.Marshal(map[string]any{"status": "ok", "response": map[string]any{}})
			reply, _ := json.Marshal(frame{Topic: "phoenix", Event: "phx_reply", Payload: payload, Ref: f.Ref})
			_ = write(reply)
		}
	}
}

// SetJoinStatus sets the status replied to channel joins ("ok" by default).
func (m *MockRealtimeServer) SetJoinStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinStatus = status
}

// WaitJoin returns the payload of the next channel join.
func (m *MockRealtimeServer) WaitJoin(t *testing.T, timeout time.Duration) json.RawMessage {
	t.Helper()
	select {
	case p := <-m.joins:
		return p
	case <-time.After(timeout):
		t.Fatalf("no channel join within %v", timeout)
		return nil
	}
}

// Push queues a frame for delivery on the current connection.
func (m *MockRealtimeServer) Push(topic, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(frame{Topic: topic, Event: event, Payload: body})
	if err != nil {
		return err
	}
	m.push <- b
	return nil
}

// PushInsert queues a postgres_changes INSERT for record.
func (m *MockRealtimeServer) PushInsert(topic, schema, table string, record map[string]any) error {
	return m.Push(topic, "postgres_changes", map[string]any{
		"ids": []int{1},
		"data": map[string]any{
			"schema":           schema,
			"table":            table,
			"commit_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"type":             "INSERT",
			"record":           record,
			"columns":          []any{},
			"errors":           nil,
		},
	})
}

// CloseConnections drops every open client connection.
func (m *MockRealtimeServer) CloseConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		_ = c.Close()
	}
}

// Queries returns the query strings of every accepted connection.
func (m *MockRealtimeServer) Queries() []url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]url.Values(nil), m.queries...)
}
