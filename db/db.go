// Package db provides the Postgres connection helper, versioned migrations, and
// the insert trigger that feeds the LISTEN/NOTIFY change feed.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// identPattern restricts schema, table and channel names to plain identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s is a plain Postgres identifier.
func ValidIdentifier(s string) bool { return identPattern.MatchString(s) }

// Connect opens a Postgres connection pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// TriggerName returns the name of the insert trigger installed on table.
func TriggerName(table string) string { return "relaybot_notify_" + table }

// EnsureInsertTrigger installs (or replaces) an AFTER INSERT trigger on
// schema.table that publishes each new row on channel. RunMigrations must
// have created relaybot_notify_insert() first.
func EnsureInsertTrigger(ctx context.Context, db *sql.DB, schema, table, channel string) error {
	for _, id := range []string{schema, table, channel} {
		if !ValidIdentifier(id) {
			return fmt.Errorf("invalid identifier %q", id)
		}
	}
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE TRIGGER %s AFTER INSERT ON %s FOR EACH ROW EXECUTE FUNCTION relaybot_notify_insert('%s')`,
		pgx.Identifier{TriggerName(table)}.Sanitize(),
		pgx.Identifier{schema, table}.Sanitize(),
		channel,
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create insert trigger on %s.%s: %w", schema, table, err)
	}
	slog.Info("insert trigger installed",
		slog.String("table", schema+"."+table),
		slog.String("channel", channel),
		slog.String("component", "db"))
	return nil
}

// DropInsertTrigger removes the trigger EnsureInsertTrigger installed.
func DropInsertTrigger(ctx context.Context, db *sql.DB, schema, table string) error {
	for _, id := range []string{schema, table} {
		if !ValidIdentifier(id) {
			return fmt.Errorf("invalid identifier %q", id)
		}
	}
	stmt := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`,
		pgx.Identifier{TriggerName(table)}.Sanitize(),
		pgx.Identifier{schema, table}.Sanitize(),
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop insert trigger on %s.%s: %w", schema, table, err)
	}
	return nil
}
