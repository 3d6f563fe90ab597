package sqlite

import "strings"

// pragmas are applied on every Open.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// readOnlyPragmas are applied by OpenReadOnly. None of them touch the file.
var readOnlyPragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA query_only=ON",
}

// catalogQuery lists user tables.
const catalogQuery = `SELECT name FROM sqlite_master WHERE type='table'`

// Dialect is the SQLite SQL flavour.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) CatalogQuery() string { return catalogQuery }

func (Dialect) NullSafeEqual() string { return "IS" }

// FoldName lowercases name. sqlite_master keeps the spelling used at
// creation but identifiers match without regard to ASCII case.
func (Dialect) FoldName(name string) string { return strings.ToLower(name) }
