package postgres_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/maloquacious/goobtool/internal/reconcile"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/store/postgres"
	"github.com/maloquacious/goobtool/internal/tablespec"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestDialect(t *testing.T) {
	var d store.Dialect = postgres.Dialect{}

	if d.Name() != "postgres" {
		t.Errorf("Name = %q", d.Name())
	}
	for n, want := range map[int]string{1: "$1", 2: "$2", 10: "$10"} {
		if got := d.Placeholder(n); got != want {
			t.Errorf("Placeholder(%d) = %q, want %q", n, got, want)
		}
	}
	if d.NullSafeEqual() != "IS NOT DISTINCT FROM" {
		t.Errorf("NullSafeEqual = %q", d.NullSafeEqual())
	}
	if got := d.FoldName("Sessions"); got != "sessions" {
		t.Errorf("FoldName = %q, want sessions", got)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := postgres.Open(context.Background(), "  "); err == nil {
		t.Error("expected error for empty DSN")
	}
}

func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := postgres.Open(ctx, connStr)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReconcileAgainstPostgres(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	src := tablespec.NewFSSource(fstest.MapFS{
		"tables.yaml": {Data: []byte(`
- name: roles
  staticRows:
    - {id: 1, name: admin, note: null}
    - {id: 2, name: player, note: starter}
- name: Sessions
`)},
		"roles.sql":    {Data: []byte("CREATE TABLE roles(id INTEGER PRIMARY KEY, name TEXT NOT NULL, note TEXT)")},
		"Sessions.sql": {Data: []byte("CREATE TABLE Sessions(id TEXT PRIMARY KEY)")},
	}, "test")

	first, err := reconcile.New(s, src).Run(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Created) != 2 || first.Inserted != 2 {
		t.Errorf("first run: got %+v", first)
	}

	second, err := reconcile.New(s, src).Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Created) != 0 || second.Inserted != 0 || second.Checked != 2 {
		t.Errorf("second run: got %+v", second)
	}

	snap, err := reconcile.TakeSnapshot(ctx, s)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Has("Sessions") {
		t.Errorf("catalog %v should match Sessions", snap.Names())
	}

	recs, err := s.QueryAll(ctx, "SELECT id FROM roles")
	if err != nil {
		t.Fatalf("query roles: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d roles, want 2", len(recs))
	}
}
