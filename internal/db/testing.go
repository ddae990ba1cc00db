package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

// NewTest opens a migrated sqlite database in a temp directory and closes it
// when the test ends.
func NewTest(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stocky_test.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate", path)

	ctx := context.Background()
	conn, err := Open(ctx, "sqlite3", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}
