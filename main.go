// Command relaybot forwards newly inserted database rows to a chat group.
// It:
//   - Loads configuration and initializes structured logging.
//   - Logs in to the messenger (QR code on first run) and tracks readiness.
//   - Subscribes to INSERT events on one table through Supabase Realtime or
//     Postgres LISTEN/NOTIFY and forwards name + url of each row.
//   - Exposes GET / on PORT for health checks, and /metrics on METRICS_ADDR.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/relaybot/changefeed"
	"github.com/onnwee/relaybot/chat"
	"github.com/onnwee/relaybot/config"
	"github.com/onnwee/relaybot/db"
	"github.com/onnwee/relaybot/forward"
	"github.com/onnwee/relaybot/server"
	"github.com/onnwee/relaybot/session"
	"github.com/onnwee/relaybot/supervisor"
	"github.com/onnwee/relaybot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("relaybot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messenger, closeMessenger, err := newMessenger(cfg)
	if err != nil {
		slog.Error("messenger setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeMessenger()

	lifecycle := session.NewLifecycle(session.NewReadiness())
	lifecycle.Bind(messenger)

	if cfg.Destination() == "" {
		slog.Warn("no destination chat configured; every send will fail with destination_not_found",
			slog.String("messenger", messenger.String()),
			slog.String("kind", forward.KindDestinationNotFound.String()))
	}
	fwd := forward.New(messenger, lifecycle.Readiness(), cfg.Destination())

	source, closeSource, err := newSource(ctx, cfg)
	if err != nil {
		slog.Error("change feed setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeSource()

	tree := supervisor.NewTree(slog.Default().With(slog.String("component", "supervisor")), supervisor.DefaultTreeConfig())
	tree.AddRelayService(messenger)
	tree.AddRelayService(changefeed.NewListener(source, fwd))
	tree.AddAPIService(supervisor.NewHTTPServerService("health-server", server.NewServer(cfg.Addr(), server.NewMux()), 5*time.Second))
	if cfg.MetricsAddr != "" {
		tree.AddAPIService(supervisor.NewHTTPServerService("metrics-server", server.NewServer(cfg.MetricsAddr, server.NewMetricsMux()), 5*time.Second))
		slog.Info("metrics listener enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("Bot server started",
		slog.String("addr", cfg.Addr()),
		slog.String("messenger", messenger.String()),
		slog.String("source", source.String()),
		slog.String("table", cfg.Schema+"."+cfg.Table),
	)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		slog.Error("supervisor stopped", slog.Any("err", err))
		os.Exit(1)
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		slog.Warn("services did not stop in time", slog.Int("count", len(report)))
	}
	slog.Info("shutdown complete")
}

// newMessenger builds the configured messaging backend and its cleanup.
func newMessenger(cfg *config.Config) (chat.Messenger, func(), error) {
	if cfg.Messenger == config.MessengerTwitch {
		tw := chat.NewTwitch(chat.TwitchConfig{
			Channel:  cfg.TwitchChannel,
			Username: cfg.TwitchBotUsername,
			OAuth:    cfg.TwitchOAuthToken,
		})
		return tw, func() {}, nil
	}

	store, err := chat.OpenSessionStore(cfg.SessionDialect, cfg.SessionDSN)
	if err != nil {
		return nil, nil, err
	}
	wa := chat.NewWhatsApp(chat.WhatsAppConfig{
		SessionDialect: cfg.SessionDialect,
		ListGroups:     cfg.ListGroups,
	}, store)
	return wa, closeDB(store, "session store"), nil
}

// newSource builds the configured change feed. The postgres driver installs
// its notify trigger before listening.
func newSource(ctx context.Context, cfg *config.Config) (changefeed.Source, func(), error) {
	if cfg.Driver == config.DriverPostgres {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			database.Close()
			return nil, nil, err
		}
		if err := db.EnsureInsertTrigger(ctx, database, cfg.Schema, cfg.Table, cfg.NotifyChannel); err != nil {
			database.Close()
			return nil, nil, err
		}
		src := changefeed.NewPostgresSource(changefeed.PostgresConfig{
			DSN:     cfg.DBDsn,
			Channel: cfg.NotifyChannel,
			Schema:  cfg.Schema,
			Table:   cfg.Table,
		})
		return src, closeDB(database, "database"), nil
	}

	src := changefeed.NewRealtimeSource(changefeed.RealtimeConfig{
		URL:    cfg.SupabaseURL,
		APIKey: cfg.SupabaseKey,
		Schema: cfg.Schema,
		Table:  cfg.Table,
		Topic:  cfg.NotifyChannel,
	})
	return src, func() {}, nil
}

func closeDB(database *sql.DB, what string) func() {
	return func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close "+what, slog.Any("err", err))
		}
	}
}
