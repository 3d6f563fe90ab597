package store

import (
	"context"
	"errors"
)

// StoreState represents the provisioning state of the datastore.
type StoreState int

const (
	StateMissing       StoreState = iota // File doesn't exist
	StateUninitialized                   // One or more specified tables are missing
	StateIncomplete                      // All tables exist but static rows are missing
	StateReady                           // Every table and static row is present
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateIncomplete:
		return "incomplete"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// ErrNotOpen is returned by handles used before Open or after Close.
var ErrNotOpen = errors.New("database not opened")

// Record is one result row keyed by column name.
type Record map[string]any

// Handle is the database capability the provisioner works against.
// Calls are executed one at a time in the order issued.
type Handle interface {
	// QueryAll runs a query and collects every row.
	QueryAll(ctx context.Context, query string, args ...any) ([]Record, error)

	// Exec runs a statement with bound parameters.
	Exec(ctx context.Context, query string, args ...any) error

	// Dialect describes the SQL flavour spoken by the store.
	Dialect() Dialect
}

// Dialect captures the SQL differences between backends.
type Dialect interface {
	// Name is a short identifier such as "sqlite".
	Name() string

	// Placeholder returns the bind marker for the n-th parameter, 1-based.
	Placeholder(n int) string

	// CatalogQuery lists existing tables in a single column named "name".
	CatalogQuery() string

	// NullSafeEqual is the comparison operator that treats NULL as equal to NULL.
	NullSafeEqual() string

	// FoldName returns the form under which the catalog matches an unquoted
	// identifier. Two names with the same folded form are the same table.
	FoldName(name string) string
}
