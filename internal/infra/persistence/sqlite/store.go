// Package sqlite provides the embedded SQLite-backed lifecycle store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"talentcore/internal/infra/persistence/sqlstore"
	"talentcore/internal/schema/sqlbundle"
	"talentcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "talentcore.db"

// Dialect describes SQLite for the shared SQL store.
var Dialect = sqlstore.Dialect{
	Name:            "sqlite",
	DDL:             sqlbundle.SQLite(),
	TextTimestamps:  true,
	BufferStreams:   true,
	UniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Store wraps the shared SQL store with an SQLite connection. SQLite allows a
// single writer, so the pool is pinned to one connection and transactions
// serialize inside database/sql instead of failing with SQLITE_BUSY.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(path string, engine *domain.RulesEngine, opts ...sqlstore.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	store := sqlstore.New(db, Dialect, engine, opts...)
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: store, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }
