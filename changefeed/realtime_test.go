package changefeed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/onnwee/relaybot/testutil"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://abc.supabase.co", "wss://abc.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0", false},
		{"http://localhost:54321", "ws://localhost:54321/realtime/v1/websocket?apikey=k&vsn=1.0.0", false},
		{"https://abc.supabase.co/", "wss://abc.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0", false},
		{"ftp://abc", "", true},
	}
	for _, tt := range tests {
		got, err := NewRealtimeSource(RealtimeConfig{URL: tt.in, APIKey: "k", Table: "t"}).WebsocketURL()
		if (err != nil) != tt.wantErr {
			t.Errorf("WebsocketURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("WebsocketURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRealtimeSourceDefaults(t *testing.T) {
	s := NewRealtimeSource(RealtimeConfig{Table: "documents"})
	if s.String() != "realtime:public.documents" {
		t.Errorf("String() = %q", s.String())
	}
	if s.topic() != "realtime:table_changes" {
		t.Errorf("topic() = %q", s.topic())
	}
	if s.cfg.HeartbeatInterval != 25*time.Second {
		t.Errorf("heartbeat = %v", s.cfg.HeartbeatInterval)
	}
}

func TestDecodeChange(t *testing.T) {
	insert := []byte(`{"ids":[1],"data":{"schema":"public","table":"documents","commit_timestamp":"2024-05-01T10:00:00.123Z","type":"INSERT","record":{"name":"A","url":"https://x"}}}`)
	ev, ok, err := decodeChange(insert)
	if err != nil || !ok {
		t.Fatalf("decodeChange insert = ok %v err %v", ok, err)
	}
	if ev.Table != "documents" || ev.Schema != "public" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.CommitTimestamp.IsZero() {
		t.Error("commit timestamp not parsed")
	}
	if name, _ := ev.Field("name"); name != "A" {
		t.Errorf("name = %q", name)
	}

	update := []byte(`{"data":{"schema":"public","table":"documents","type":"UPDATE","record":{"name":"A","url":"https://x"}}}`)
	if _, ok, err := decodeChange(update); err != nil || ok {
		t.Errorf("decodeChange update = ok %v err %v, want ignored", ok, err)
	}

	if _, _, err := decodeChange([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

type collector struct {
	mu     sync.Mutex
	events []InsertEvent
	errs   []error
	got    chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 16)} }

func (c *collector) onInsert(ev InsertEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.got:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestRealtimeSubscribeDeliversInserts(t *testing.T) {
	srv := testutil.NewMockRealtimeServer(t)
	src := NewRealtimeSource(RealtimeConfig{URL: srv.URL, APIKey: "service-key", Table: "documents"})
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Subscribe(ctx, col.onInsert, col.onError) }()

	raw := srv.WaitJoin(t, 3*time.Second)
	var join joinPayload
	if err := json.Unmarshal(raw, &join); err != nil {
		t.Fatalf("decode join: %v", err)
	}
	if join.AccessToken != "service-key" {
		t.Errorf("access_token = %q", join.AccessToken)
	}
	pc := join.Config.PostgresChanges
	if len(pc) != 1 || pc[0].Event != "INSERT" || pc[0].Schema != "public" || pc[0].Table != "documents" {
		t.Errorf("postgres_changes = %+v", pc)
	}
	q := srv.Queries()
	if len(q) == 0 || q[0].Get("apikey") != "service-key" || q[0].Get("vsn") != "1.0.0" {
		t.Errorf("connection query = %v", q)
	}

	if err := srv.Push("realtime:table_changes", "postgres_changes", map[string]any{
		"data": map[string]any{"schema": "public", "table": "documents", "type": "DELETE", "record": map[string]any{}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := srv.PushInsert("realtime:table_changes", "public", "documents", map[string]any{"name": "Doc", "url": "https://x/doc"}); err != nil {
		t.Fatal(err)
	}
	col.wait(t)

	col.mu.Lock()
	if len(col.events) != 1 || len(col.errs) != 0 {
		t.Fatalf("events=%d errs=%v", len(col.events), col.errs)
	}
	if url, _ := col.events[0].Field("url"); url != "https://x/doc" {
		t.Errorf("url = %q", url)
	}
	col.mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe() = %v, want nil on cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestRealtimeJoinRejectedReportsError(t *testing.T) {
	srv := testutil.NewMockRealtimeServer(t)
	srv.SetJoinStatus("error")
	src := NewRealtimeSource(RealtimeConfig{URL: srv.URL, APIKey: "k", Table: "documents"})
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Subscribe(ctx, col.onInsert, col.onError) }()

	col.wait(t)
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.errs) != 1 || !errors.Is(col.errs[0], errJoinRejected) {
		t.Fatalf("errs = %v, want join rejection", col.errs)
	}
}

func TestRealtimeChannelErrorReportsError(t *testing.T) {
	srv := testutil.NewMockRealtimeServer(t)
	src := NewRealtimeSource(RealtimeConfig{URL: srv.URL, APIKey: "k", Table: "documents"})
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Subscribe(ctx, col.onInsert, col.onError) }()

	srv.WaitJoin(t, 3*time.Second)
	if err := srv.Push("realtime:table_changes", "phx_error", map[string]any{}); err != nil {
		t.Fatal(err)
	}
	col.wait(t)
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.errs) != 1 || !strings.Contains(col.errs[0].Error(), "channel error") {
		t.Fatalf("errs = %v", col.errs)
	}
}

func TestRealtimeReconnectsAfterDrop(t *testing.T) {
	srv := testutil.NewMockRealtimeServer(t)
	src := NewRealtimeSource(RealtimeConfig{URL: srv.URL, APIKey: "k", Table: "documents"})
	col := newCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Subscribe(ctx, col.onInsert, col.onError) }()

	srv.WaitJoin(t, 3*time.Second)
	srv.CloseConnections()
	col.wait(t) // read error

	// Backoff starts at about one second.
	srv.WaitJoin(t, 5*time.Second)
	if n := len(srv.Queries()); n < 2 {
		t.Fatalf("connections = %d, want reconnect", n)
	}
}
