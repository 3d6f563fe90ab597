package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

// Snapshot is the set of table names present when a run started.
type Snapshot struct {
	fold  func(string) string
	names map[string]string // folded name to catalog spelling
}

// NewSnapshot returns a snapshot of names. Lookups compare names after
// fold; a nil fold compares them exactly.
func NewSnapshot(fold func(string) string, names ...string) Snapshot {
	s := Snapshot{fold: fold, names: make(map[string]string, len(names))}
	for _, name := range names {
		s.names[s.key(name)] = name
	}
	return s
}

func (s Snapshot) key(name string) string {
	if s.fold == nil {
		return name
	}
	return s.fold(name)
}

// Has reports whether the named table was present.
func (s Snapshot) Has(name string) bool {
	_, ok := s.names[s.key(name)]
	return ok
}

// Len returns the number of tables.
func (s Snapshot) Len() int {
	return len(s.names)
}

// Names returns the table names as the catalog spells them, in lexical order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.names))
	for _, name := range s.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TakeSnapshot lists the tables currently in the store.
func TakeSnapshot(ctx context.Context, db store.Handle) (Snapshot, error) {
	recs, err := db.QueryAll(ctx, db.Dialect().CatalogQuery())
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read table catalog: %w", err)
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		name, ok := r["name"].(string)
		if !ok {
			return Snapshot{}, fmt.Errorf("failed to read table catalog: unexpected name %#v", r["name"])
		}
		names = append(names, name)
	}
	return NewSnapshot(db.Dialect().FoldName, names...), nil
}

// Class says what a run has to do for one table.
type Class int

const (
	Missing         Class = iota // Create the table and insert every static row
	PresentWithRows              // Check each static row, insert the absent ones
	PresentNoAction              // Nothing to do
)

func (c Class) String() string {
	switch c {
	case Missing:
		return "missing"
	case PresentWithRows:
		return "present with rows"
	case PresentNoAction:
		return "present"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Classify decides the work needed for t given the snapshot.
func Classify(snap Snapshot, t tablespec.Table) Class {
	switch {
	case !snap.Has(t.Name):
		return Missing
	case len(t.StaticRows) > 0:
		return PresentWithRows
	default:
		return PresentNoAction
	}
}
