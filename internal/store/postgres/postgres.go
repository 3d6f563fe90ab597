// Package postgres implements store.Handle for PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/maloquacious/goobtool/internal/store"
)

var _ store.Handle = (*Store)(nil)

// Store is a PostgreSQL-backed store.Handle.
type Store struct {
	*store.SQLHandle
}

// Open connects to the database named by dsn and pings it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{SQLHandle: store.NewSQLHandle(db, Dialect{})}, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.DB().Close()
}

// Dialect is the PostgreSQL SQL flavour.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Dialect) CatalogQuery() string {
	return `SELECT table_name AS name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'`
}

func (Dialect) NullSafeEqual() string { return "IS NOT DISTINCT FROM" }

// FoldName lowercases name, as PostgreSQL does with unquoted identifiers.
func (Dialect) FoldName(name string) string { return strings.ToLower(name) }
