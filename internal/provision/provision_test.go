package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maloquacious/goobtool/internal/reconcile"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/store/sqlite"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

func writeConfig(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func usersConfig(t *testing.T) string {
	return writeConfig(t, map[string]string{
		"tables.yaml": "- name: users\n  staticRows:\n    - {id: 1, name: admin}\n",
		"users.sql":   "CREATE TABLE users(id, name)",
	})
}

func TestInitializeNotifiesEverySubscriber(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), store.DefaultDBFile)
	configDir := usersConfig(t)

	p := New()
	var a, b []string
	p.Subscribe(func(m string) { a = append(a, m) })
	p.Subscribe(func(m string) { b = append(b, m) })

	s, err := p.Initialize(context.Background(), dbPath, configDir)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer s.Close()

	want := []string{
		"Initializing database...",
		"Queuing table users for creation.",
		`Queuing table users, row {"id":1,"name":"admin"} for creation.`,
		"Creating table users",
		`Creating table users, row {"id":1,"name":"admin"}`,
	}
	for name, got := range map[string][]string{"a": a, "b": b} {
		if len(got) != len(want) {
			t.Fatalf("%s: got %q, want %q", name, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s message %d: got %q, want %q", name, i, got[i], want[i])
			}
		}
	}

	recs, err := s.QueryAll(context.Background(), "SELECT * FROM users")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d users, want 1", len(recs))
	}

	st := p.Status()
	if !st.Ready || st.Err != nil || st.Result == nil {
		t.Errorf("got status %+v, want ready", st)
	}
}

func TestInitializeTwiceIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), store.DefaultDBFile)
	configDir := usersConfig(t)
	ctx := context.Background()

	s, err := New().Initialize(ctx, dbPath, configDir)
	if err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	p := New()
	var messages []string
	p.Subscribe(func(m string) { messages = append(messages, m) })

	s, err = p.Initialize(ctx, dbPath, configDir)
	if err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	defer s.Close()

	if len(messages) != 1 || messages[0] != "Initializing database..." {
		t.Errorf("second run reported %q", messages)
	}
	res := p.Status().Result
	if res.Checked != 1 || res.Inserted != 0 || len(res.Created) != 0 {
		t.Errorf("got %+v, want one check and no work", res)
	}
}

func TestInitializeSpecErrorClosesStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), store.DefaultDBFile)
	configDir := writeConfig(t, map[string]string{
		"tables.yaml": "- name: users\n",
	})

	p := New()
	s, err := p.Initialize(context.Background(), dbPath, configDir)
	if s != nil {
		t.Error("expected nil store on failure")
	}
	if !errors.Is(err, tablespec.ErrInvalidSpec) {
		t.Fatalf("got %v, want ErrInvalidSpec", err)
	}
	var runErr *reconcile.RunError
	if !errors.As(err, &runErr) || runErr.State != reconcile.StateApplyRunning {
		t.Errorf("got %v, want failure while applying", err)
	}

	st := p.Status()
	if st.Ready || st.Err == nil {
		t.Errorf("got status %+v, want failed", st)
	}
}

func TestInitializeBadDBPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "dir", store.DefaultDBFile)

	_, err := New().Initialize(context.Background(), dbPath, usersConfig(t))
	if err == nil {
		t.Fatal("expected error for unreachable database path")
	}
}

func TestPlanReportsPendingWork(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), store.DefaultDBFile)
	configDir := usersConfig(t)
	ctx := context.Background()

	s, err := New().Initialize(ctx, dbPath, configDir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Exec(ctx, "DELETE FROM users"); err != nil {
		t.Fatal(err)
	}

	plan, err := New().Plan(ctx, s, tablespec.Dir(configDir))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Missing) != 0 || len(plan.Rows) != 1 || plan.Rows[0].Table != "users" {
		t.Errorf("got missing %v rows %v", plan.Missing, plan.Rows)
	}
}

func TestInitializeHandleReportsStart(t *testing.T) {
	configDir := usersConfig(t)
	s := sqlite.New(filepath.Join(t.TempDir(), store.DefaultDBFile))
	if err := s.Open(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	p := New()
	var messages []string
	p.Subscribe(func(m string) { messages = append(messages, m) })

	res, err := p.InitializeHandle(context.Background(), s, tablespec.Dir(configDir))
	if err != nil {
		t.Fatalf("InitializeHandle: %v", err)
	}
	if len(messages) == 0 || messages[0] != "Initializing database..." {
		t.Errorf("got %q, want the start message first", messages)
	}
	if n := countMessage(messages, "Initializing database..."); n != 1 {
		t.Errorf("start message reported %d times", n)
	}
	if len(res.Created) != 1 || res.Inserted != 1 {
		t.Errorf("got %+v", res)
	}
}

func countMessage(messages []string, want string) int {
	n := 0
	for _, m := range messages {
		if m == want {
			n++
		}
	}
	return n
}
