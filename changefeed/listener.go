package changefeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/relaybot/forward"
	"github.com/onnwee/relaybot/telemetry"
)

// Forwarder is the send side of the listener.
type Forwarder interface {
	Forward(ctx context.Context, name, url string) forward.Outcome
}

// Listener keeps a standing subscription and forwards qualifying inserts.
type Listener struct {
	source Source
	fwd    Forwarder
	wg     sync.WaitGroup
}

// NewListener returns a listener reading from source.
func NewListener(source Source, fwd Forwarder) *Listener {
	return &Listener{source: source, fwd: fwd}
}

func (l *Listener) String() string { return "changefeed-listener" }

// Serve subscribes and blocks until ctx is done. Each insert is handled on its
// own goroutine so a slow send never stalls the feed; Serve waits for those
// handlers before returning.
func (l *Listener) Serve(ctx context.Context) error {
	slog.Info("Subscribing to table changes...", slog.String("source", l.source.String()), slog.String("component", "changefeed"))
	err := l.source.Subscribe(ctx, func(ev InsertEvent) {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.HandleInsert(ctx, ev)
		}()
	}, l.HandleError)
	l.wg.Wait()
	return err
}

// HandleInsert extracts name and url from ev and forwards them. Rows missing
// either field are logged and dropped.
func (l *Listener) HandleInsert(ctx context.Context, ev InsertEvent) forward.Outcome {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	ctx, span := telemetry.StartSpan(ctx, "changefeed", "insert",
		attribute.String("db.sql.table", ev.Table))
	defer span.End()

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "changefeed"), slog.String("table", ev.Table))
	telemetry.IncEventsReceived()
	log.Debug("Full payload received", slog.Any("record", ev.Record), slog.Time("commit_timestamp", ev.CommitTimestamp))

	name, okName := ev.Field("name")
	url, okURL := ev.Field("url")
	if !okName || !okURL {
		log.Info("No url or name field in new row.",
			slog.String("kind", forward.KindMissingField.String()),
			slog.String("name", name),
			slog.String("url", url),
			slog.Bool("has_name", okName),
			slog.Bool("has_url", okURL))
		telemetry.IncDropped(forward.KindMissingField.String())
		return forward.Outcome{Kind: forward.KindMissingField}
	}

	log.Debug("url + name exist, sending...")
	return l.fwd.Forward(ctx, name, url)
}

// HandleError logs a subscription-level failure. Recovery is left to the source.
func (l *Listener) HandleError(err error) {
	slog.Error("Subscription error",
		slog.String("kind", forward.KindSubscriptionError.String()),
		slog.String("source", l.source.String()),
		slog.Any("err", err),
		slog.String("component", "changefeed"))
	telemetry.IncSubscriptionErrors()
}
