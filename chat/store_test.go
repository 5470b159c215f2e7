package chat

import (
	"path/filepath"
	"testing"
)

func TestOpenSessionStoreSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "session.db") + "?_foreign_keys=on"
	db, err := OpenSessionStore("sqlite3", dsn)
	if err != nil {
		t.Fatalf("OpenSessionStore: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenSessionStoreUnknownDialect(t *testing.T) {
	if _, err := OpenSessionStore("mysql", "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
