package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	realtimePath     = "/realtime/v1/websocket"
	realtimeVSN      = "1.0.0"
	defaultHeartbeat = 25 * time.Second
	joinRef          = "1"
)

// RealtimeConfig configures a Supabase Realtime subscription.
type RealtimeConfig struct {
	// URL is the project URL, e.g. https://abc.supabase.co.
	URL string
	// APIKey is sent as the apikey query parameter and as the channel access token.
	APIKey string
	Schema string
	Table  string
	// Topic is the channel name; frames use "realtime:<Topic>".
	Topic string
	// HeartbeatInterval defaults to 25s.
	HeartbeatInterval time.Duration
}

// RealtimeSource subscribes to postgres_changes INSERT events over the
// Realtime websocket.
type RealtimeSource struct {
	cfg    RealtimeConfig
	dialer *websocket.Dialer
	ref    atomic.Uint64
}

// NewRealtimeSource returns a source for cfg.
func NewRealtimeSource(cfg RealtimeConfig) *RealtimeSource {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Topic == "" {
		cfg.Topic = "table_changes"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	return &RealtimeSource{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (s *RealtimeSource) String() string {
	return "realtime:" + s.cfg.Schema + "." + s.cfg.Table
}

// phxMessage is a Phoenix channels v1 frame.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type postgresChange struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Ack  bool `json:"ack"`
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []postgresChange `json:"postgres_changes"`
		Private         bool             `json:"private"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

// changeData is the row change shape shared by Realtime frames and the
// NOTIFY payloads written by the insert trigger.
type changeData struct {
	Schema          string         `json:"schema"`
	Table           string         `json:"table"`
	CommitTimestamp string         `json:"commit_timestamp"`
	Type            string         `json:"type"`
	Record          map[string]any `json:"record"`
}

type changesPayload struct {
	IDs  []int64    `json:"ids"`
	Data changeData `json:"data"`
}

type systemPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// errJoinRejected marks a phx_reply error to the channel join.
var errJoinRejected = errors.New("realtime channel join rejected")

// Subscribe connects, joins the channel, and delivers INSERT events until ctx
// is done. Connection and channel errors go to onError followed by a reconnect.
func (s *RealtimeSource) Subscribe(ctx context.Context, onInsert func(InsertEvent), onError func(error)) error {
	bo := newReconnectBackoff()
	for {
		joined, err := s.session(ctx, onInsert)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			onError(err)
		}
		if joined {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		slog.Info("realtime reconnecting", slog.Duration("in", wait), slog.String("component", "changefeed"))
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

// WebsocketURL returns the Realtime endpoint derived from the project URL.
func (s *RealtimeSource) WebsocketURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + realtimePath
	q := u.Query()
	q.Set("apikey", s.cfg.APIKey)
	q.Set("vsn", realtimeVSN)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *RealtimeSource) topic() string { return "realtime:" + s.cfg.Topic }

func (s *RealtimeSource) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1)+1, 10)
}

// session runs one connection. joined reports whether the channel join was
// acknowledged before the connection ended.
func (s *RealtimeSource) session(ctx context.Context, onInsert func(InsertEvent)) (joined bool, err error) {
	wsURL, err := s.WebsocketURL()
	if err != nil {
		return false, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("realtime dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("realtime dial: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg phxMessage) error {
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	var join joinPayload
	join.Config.PostgresChanges = []postgresChange{{Event: "INSERT", Schema: s.cfg.Schema, Table: s.cfg.Table}}
	join.AccessToken = s.cfg.APIKey
	joinBody, err := json.Marshal(join)
	if err != nil {
		return false, fmt.Errorf("encode join: %w", err)
	}
	ref := joinRef
	if err := send(phxMessage{Topic: s.topic(), Event: "phx_join", Payload: joinBody, Ref: &ref, JoinRef: &ref}); err != nil {
		return false, fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblock ReadMessage.
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				hbRef := s.nextRef()
				if err := send(phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: &hbRef}); err != nil {
					slog.Warn("realtime heartbeat failed", slog.Any("err", err), slog.String("component", "changefeed"))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	readTimeout := 2*s.cfg.HeartbeatInterval + 5*time.Second
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return joined, nil
			}
			return joined, fmt.Errorf("realtime read: %w", err)
		}
		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("realtime: undecodable frame", slog.Any("err", err), slog.String("component", "changefeed"))
			continue
		}
		switch msg.Event {
		case "phx_reply":
			if msg.Topic != s.topic() || msg.Ref == nil || *msg.Ref != joinRef {
				continue
			}
			var reply phxReply
			if err := json.Unmarshal(msg.Payload, &reply); err != nil {
				return joined, fmt.Errorf("decode join reply: %w", err)
			}
			if reply.Status != "ok" {
				return joined, fmt.Errorf("%w: %s", errJoinRejected, string(reply.Response))
			}
			joined = true
			slog.Info("Subscribed successfully!", slog.String("topic", s.topic()), slog.String("table", s.cfg.Schema+"."+s.cfg.Table), slog.String("component", "changefeed"))
		case "postgres_changes":
			ev, ok, err := decodeChange(msg.Payload)
			if err != nil {
				slog.Warn("realtime: undecodable change", slog.Any("err", err), slog.String("component", "changefeed"))
				continue
			}
			if ok {
				onInsert(ev)
			}
		case "system":
			var sys systemPayload
			_ = json.Unmarshal(msg.Payload, &sys)
			if sys.Status == "error" {
				return joined, fmt.Errorf("realtime system error: %s", sys.Message)
			}
			slog.Debug("realtime system message", slog.String("status", sys.Status), slog.String("message", sys.Message), slog.String("component", "changefeed"))
		case "phx_error":
			return joined, errors.New("realtime channel error")
		case "phx_close":
			return joined, errors.New("realtime channel closed by server")
		}
	}
}

// decodeChange converts a postgres_changes payload into an InsertEvent. ok is
// false for non-INSERT changes.
func decodeChange(payload []byte) (InsertEvent, bool, error) {
	var p changesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return InsertEvent{}, false, err
	}
	ev, ok := p.Data.insertEvent()
	return ev, ok, nil
}

func (d changeData) insertEvent() (InsertEvent, bool) {
	if d.Type != "INSERT" {
		return InsertEvent{}, false
	}
	ev := InsertEvent{
		Schema: d.Schema,
		Table:  d.Table,
		Record: d.Record,
	}
	if ts, err := time.Parse(time.RFC3339Nano, d.CommitTimestamp); err == nil {
		ev.CommitTimestamp = ts
	}
	return ev, true
}
