package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/maloquacious/goobtool/internal/progress"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/store/sqlite"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

const usersSpec = `
- name: users
  staticRows:
    - {id: 1, name: admin}
`

func usersSource() tablespec.Source {
	return tablespec.NewFSSource(fstest.MapFS{
		"tables.yaml": {Data: []byte(usersSpec)},
		"users.sql":   {Data: []byte("CREATE TABLE users(id, name)")},
	}, "test")
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s := sqlite.New(filepath.Join(t.TempDir(), store.DefaultDBFile))
	if err := s.Open(); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustExec(t *testing.T, db store.Handle, query string, args ...any) {
	t.Helper()
	if err := db.Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
}

func countRows(t *testing.T, db store.Handle, table string) int {
	t.Helper()
	recs, err := db.QueryAll(context.Background(), "SELECT * FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return len(recs)
}

// recorder collects progress messages.
type recorder struct {
	messages []string
}

func (r *recorder) broadcaster() *progress.Broadcaster {
	b := progress.New(nil)
	b.Subscribe(func(m string) { r.messages = append(r.messages, m) })
	return b
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, m := range r.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) index(msg string) int {
	for i, m := range r.messages {
		if m == msg {
			return i
		}
	}
	return -1
}

// fakeHandle wraps a store and injects failures.
type fakeHandle struct {
	store.Handle
	failQuery func(query string) bool
	failExec  func(query string) bool
	execs     []string
	queries   []string
}

var errInjected = errors.New("injected failure")

func (f *fakeHandle) QueryAll(ctx context.Context, query string, args ...any) ([]store.Record, error) {
	f.queries = append(f.queries, query)
	if f.failQuery != nil && f.failQuery(query) {
		return nil, errInjected
	}
	return f.Handle.QueryAll(ctx, query, args...)
}

func (f *fakeHandle) Exec(ctx context.Context, query string, args ...any) error {
	f.execs = append(f.execs, query)
	if f.failExec != nil && f.failExec(query) {
		return errInjected
	}
	return f.Handle.Exec(ctx, query, args...)
}
