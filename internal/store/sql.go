package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLHandle implements Handle over a database/sql connection.
type SQLHandle struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLHandle wraps db. The caller keeps ownership of db.
func NewSQLHandle(db *sql.DB, dialect Dialect) *SQLHandle {
	return &SQLHandle{db: db, dialect: dialect}
}

// DB returns the wrapped connection.
func (h *SQLHandle) DB() *sql.DB {
	return h.db
}

func (h *SQLHandle) Dialect() Dialect {
	return h.dialect
}

func (h *SQLHandle) Exec(ctx context.Context, query string, args ...any) error {
	if h == nil || h.db == nil {
		return ErrNotOpen
	}
	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

func (h *SQLHandle) QueryAll(ctx context.Context, query string, args ...any) ([]Record, error) {
	if h == nil || h.db == nil {
		return nil, ErrNotOpen
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
