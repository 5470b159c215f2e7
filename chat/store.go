package chat

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver for the default session file
)

// OpenSessionStore opens the database that holds the WhatsApp session.
// dialect is "sqlite3" (a local file, the default) or "postgres".
func OpenSessionStore(dialect, dsn string) (*sql.DB, error) {
	var driver string
	switch dialect {
	case "sqlite3":
		driver = "sqlite3"
	case "postgres":
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported session store dialect %q", dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if dialect == "sqlite3" {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
