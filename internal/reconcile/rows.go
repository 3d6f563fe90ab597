package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

// insertSQL builds a positional INSERT for row.
func insertSQL(d store.Dialect, table string, row tablespec.Row) (string, []any) {
	placeholders := make([]string, len(row))
	for i := range row {
		placeholders[i] = d.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)",
		table,
		strings.Join(row.Names(), ", "),
		strings.Join(placeholders, ", "),
	)
	return query, row.Values()
}

// existsSQL builds a query matching every declared column of row. NULL
// values use the dialect's null-safe comparison.
func existsSQL(d store.Dialect, table string, row tablespec.Row) (string, []any) {
	conds := make([]string, len(row))
	for i, c := range row {
		op := "="
		if c.Value == nil {
			op = d.NullSafeEqual()
		}
		conds[i] = fmt.Sprintf("%s %s %s", c.Name, op, d.Placeholder(i+1))
	}
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", table, strings.Join(conds, " AND "))
	return query, row.Values()
}

func rowExists(ctx context.Context, db store.Handle, table string, row tablespec.Row) (bool, error) {
	query, args := existsSQL(db.Dialect(), table, row)
	recs, err := db.QueryAll(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("check table %s, row %s: %w", table, row, err)
	}
	return len(recs) > 0, nil
}
