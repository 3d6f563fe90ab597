package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maloquacious/goobtool/internal/store"
	_ "modernc.org/sqlite"
)

var _ store.Handle = (*Store)(nil)

// Store implements store.Handle using modernc.org/sqlite.
type Store struct {
	dbPath string
	db     *sql.DB
	handle *store.SQLHandle
}

// New creates a new Store for the database file at dbPath.
func New(dbPath string) *Store {
	return &Store{
		dbPath: dbPath,
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Open opens the SQLite database with safe defaults.
// The file is created if it does not exist.
func (s *Store) Open() error {
	return s.open(pragmas)
}

// OpenReadOnly opens an existing database without changing it. The
// journal mode is left alone and statements that write are refused.
func (s *Store) OpenReadOnly() error {
	exists, err := store.CheckExists(s.dbPath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("database %s does not exist", s.dbPath)
	}
	return s.open(readOnlyPragmas)
}

func (s *Store) open(settings []string) error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps the pragmas in effect and serializes every
	// statement in issue order.
	db.SetMaxOpenConns(1)

	for _, pragma := range settings {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s.db = db
	s.handle = store.NewSQLHandle(db, Dialect{})
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db, s.handle = nil, nil
		return err
	}
	return nil
}

// DB returns the underlying connection, or nil when the store is closed.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() store.Dialect {
	return Dialect{}
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if s.handle == nil {
		return store.ErrNotOpen
	}
	return s.handle.Exec(ctx, query, args...)
}

func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]store.Record, error) {
	if s.handle == nil {
		return nil, store.ErrNotOpen
	}
	return s.handle.QueryAll(ctx, query, args...)
}
