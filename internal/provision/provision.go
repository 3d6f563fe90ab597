// Package provision is the entry point applications call at startup to get a
// fully provisioned database.
package provision

import (
	"context"
	"fmt"
	"sync"

	"github.com/maloquacious/goobtool/internal/logger"
	"github.com/maloquacious/goobtool/internal/progress"
	"github.com/maloquacious/goobtool/internal/reconcile"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/store/sqlite"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

// Provisioner runs reconciliations and fans their progress out to subscribers.
type Provisioner struct {
	progress *progress.Broadcaster
	log      logger.Logger

	mu      sync.Mutex
	last    *reconcile.Result
	lastErr error
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger used for debug output and listener failures.
func WithLogger(l logger.Logger) Option {
	return func(p *Provisioner) { p.log = l }
}

// New returns a Provisioner with no subscribers.
func New(opts ...Option) *Provisioner {
	p := &Provisioner{}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Default
	}
	p.progress = progress.New(p.log)
	return p
}

// Subscribe registers a listener for progress messages.
func (p *Provisioner) Subscribe(fn func(message string)) {
	p.progress.Subscribe(fn)
}

// Initialize opens (creating if needed) the SQLite database at dbPath and
// reconciles it against the specification in configDir. On success the open
// store is returned and the caller owns it. On failure the store is closed.
func (p *Provisioner) Initialize(ctx context.Context, dbPath, configDir string) (*sqlite.Store, error) {
	p.progress.Report("Initializing database...")

	s := sqlite.New(dbPath)
	if err := s.Open(); err != nil {
		p.record(nil, err)
		return nil, err
	}
	if _, err := p.run(ctx, s, tablespec.Dir(configDir)); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// InitializeHandle reconciles an already open store against src.
func (p *Provisioner) InitializeHandle(ctx context.Context, h store.Handle, src tablespec.Source) (*reconcile.Result, error) {
	p.progress.Report("Initializing database...")
	return p.run(ctx, h, src)
}

func (p *Provisioner) run(ctx context.Context, h store.Handle, src tablespec.Source) (*reconcile.Result, error) {
	r := reconcile.New(h, src, reconcile.WithProgress(p.progress), reconcile.WithLogger(p.log))
	res, err := r.Run(ctx)
	if err != nil {
		err = fmt.Errorf("initialize %s database: %w", h.Dialect().Name(), err)
	}
	p.record(res, err)
	return res, err
}

// Plan computes the pending work for h without applying it.
func (p *Provisioner) Plan(ctx context.Context, h store.Handle, src tablespec.Source) (*reconcile.Plan, error) {
	return reconcile.New(h, src, reconcile.WithProgress(p.progress), reconcile.WithLogger(p.log)).Plan(ctx)
}

// Status describes the most recent run.
type Status struct {
	Ready  bool
	Result *reconcile.Result
	Err    error
}

// Status returns the outcome of the most recent run. It is safe to call
// while a run is in progress.
func (p *Provisioner) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Ready:  p.last != nil && p.lastErr == nil,
		Result: p.last,
		Err:    p.lastErr,
	}
}

func (p *Provisioner) record(res *reconcile.Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last, p.lastErr = res, err
}
