// Package tablespec reads the declarative table specification: the ordered
// list of tables an application needs, the creation statement for each, and
// the static rows each table must contain.
//
// A specification directory looks like:
//
//	config/
//	  tables.yaml      ordered list of {name, staticRows}
//	  users.sql        CREATE TABLE users(...)
//	  roles.sql        CREATE TABLE roles(...)
//
// tables.yml and tables.json are accepted in place of tables.yaml, and a
// creation statement may live in <name>.txt instead of <name>.sql.
package tablespec

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidSpec marks every error caused by a missing, unreadable, or
// malformed specification. These are deployment errors, not store errors.
var ErrInvalidSpec = errors.New("invalid table specification")

// Table describes one table the store must contain.
type Table struct {
	Name       string `yaml:"name"`
	StaticRows []Row  `yaml:"staticRows"`
}

// Source supplies table specifications. It is read-only.
type Source interface {
	// Tables returns the table list in specification order.
	Tables() ([]Table, error)

	// CreateStatement returns the raw creation statement for the named table.
	CreateStatement(name string) (string, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used unquoted as a table or column name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Validate checks table and column names and rejects empty static rows.
// Table name uniqueness is not checked.
func Validate(tables []Table) error {
	for i, t := range tables {
		if !ValidIdentifier(t.Name) {
			return fmt.Errorf("%w: table %d: bad table name %q", ErrInvalidSpec, i, t.Name)
		}
		for j, row := range t.StaticRows {
			if len(row) == 0 {
				return fmt.Errorf("%w: table %s: static row %d declares no columns", ErrInvalidSpec, t.Name, j)
			}
			seen := make(map[string]bool, len(row))
			for _, c := range row {
				if !ValidIdentifier(c.Name) {
					return fmt.Errorf("%w: table %s: static row %d: bad column name %q", ErrInvalidSpec, t.Name, j, c.Name)
				}
				if seen[c.Name] {
					return fmt.Errorf("%w: table %s: static row %d: duplicate column %q", ErrInvalidSpec, t.Name, j, c.Name)
				}
				seen[c.Name] = true
			}
		}
	}
	return nil
}
