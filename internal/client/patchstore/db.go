package patchstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/storyline/internal/client/migrations"
	"github.com/dmitrijs2005/storyline/internal/dbx"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// filePragmas make a file database usable by two processes at once: WAL lets
// a reader see another process's commits and busy_timeout waits out locks.
const filePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// OpenDB opens the local SQLite database and brings its schema up to date.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := dbx.Migrate(ctx, db, migrations.Migrations, "sqlite3"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func withPragmas(dsn string) string {
	if isMemory(dsn) || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + filePragmas
	}
	return dsn + "?" + filePragmas
}
