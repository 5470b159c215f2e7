package changefeed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

// PostgresConfig configures a LISTEN/NOTIFY subscription.
type PostgresConfig struct {
	DSN     string
	Channel string
	Schema  string
	Table   string
}

// PostgresSource receives inserts from the NOTIFY channel written by the
// trigger that db.EnsureInsertTrigger installs.
type PostgresSource struct {
	cfg PostgresConfig
}

// NewPostgresSource returns a source for cfg.
func NewPostgresSource(cfg PostgresConfig) *PostgresSource {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Channel == "" {
		cfg.Channel = "table_changes"
	}
	return &PostgresSource{cfg: cfg}
}

func (s *PostgresSource) String() string {
	return "postgres:" + s.cfg.Channel
}

// Subscribe LISTENs on the channel and delivers inserts for the configured
// table until ctx is done, reconnecting after connection errors.
func (s *PostgresSource) Subscribe(ctx context.Context, onInsert func(InsertEvent), onError func(error)) error {
	bo := newReconnectBackoff()
	for {
		listening, err := s.session(ctx, onInsert)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			onError(err)
		}
		if listening {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		slog.Info("postgres listener reconnecting", slog.Duration("in", wait), slog.String("component", "changefeed"))
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

func (s *PostgresSource) session(ctx context.Context, onInsert func(InsertEvent)) (bool, error) {
	conn, err := pgx.Connect(ctx, s.cfg.DSN)
	if err != nil {
		return false, fmt.Errorf("postgres connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.cfg.Channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen %s: %w", s.cfg.Channel, err)
	}
	slog.Info("Subscribed successfully!", slog.String("channel", s.cfg.Channel), slog.String("table", s.cfg.Schema+"."+s.cfg.Table), slog.String("component", "changefeed"))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		ev, ok, err := s.decode([]byte(n.Payload))
		if err != nil {
			slog.Warn("postgres listener: undecodable notification", slog.Any("err", err), slog.String("component", "changefeed"))
			continue
		}
		if ok {
			onInsert(ev)
		}
	}
}

// decode parses a trigger payload. Rows from other tables sharing the channel
// are skipped.
func (s *PostgresSource) decode(payload []byte) (InsertEvent, bool, error) {
	var d changeData
	if err := json.Unmarshal(payload, &d); err != nil {
		return InsertEvent{}, false, err
	}
	if d.Schema != s.cfg.Schema || d.Table != s.cfg.Table {
		return InsertEvent{}, false, nil
	}
	ev, ok := d.insertEvent()
	return ev, ok, nil
}
