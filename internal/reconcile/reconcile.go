// Package reconcile brings a store's tables and static rows in line with a
// table specification. It only ever creates: missing tables are created and
// absent static rows are inserted, and existing state is left alone.
//
// A run has two phases. The finder phase checks the static rows of tables
// that already exist; the apply phase then creates tables and inserts rows
// in specification order. Both phases run their tasks one at a time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maloquacious/goobtool/internal/logger"
	"github.com/maloquacious/goobtool/internal/progress"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/tablespec"
)

// ErrPlanApplied is returned when a plan is applied a second time.
var ErrPlanApplied = errors.New("plan already applied")

// Reconciler reconciles one store against one specification source.
// It is not safe for concurrent use.
type Reconciler struct {
	db       store.Handle
	src      tablespec.Source
	progress *progress.Broadcaster
	log      logger.Logger
	state    State
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithProgress sets the broadcaster that receives status messages.
func WithProgress(b *progress.Broadcaster) Option {
	return func(r *Reconciler) { r.progress = b }
}

// WithLogger sets the logger for debug output.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// New returns a Reconciler for db and src.
func New(db store.Handle, src tablespec.Source, opts ...Option) *Reconciler {
	r := &Reconciler{db: db, src: src, state: StateStart}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Default
	}
	if r.progress == nil {
		r.progress = progress.New(r.log)
	}
	return r
}

// State returns the step the last run reached.
func (r *Reconciler) State() State {
	return r.state
}

// PendingRow is a static row scheduled for insertion.
type PendingRow struct {
	Table string
	Row   tablespec.Row
}

// Plan is the outcome of the finder phase: the complete, ordered list of
// work the apply phase will perform.
type Plan struct {
	RunID    string
	Snapshot Snapshot
	Tables   []tablespec.Table

	// Missing lists tables to create, in specification order.
	Missing []string
	// Rows lists rows to insert, in apply order.
	Rows []PendingRow
	// Checked counts static rows looked up on present tables.
	Checked int

	apply   *Queue
	started time.Time
	applied bool
}

// Pending reports whether applying the plan would change the store.
func (p *Plan) Pending() bool {
	return len(p.Missing) > 0 || len(p.Rows) > 0
}

// Steps returns the apply task labels in run order.
func (p *Plan) Steps() []string {
	return p.apply.Labels()
}

// Result summarizes a completed run.
type Result struct {
	RunID    string
	Created  []string
	Inserted int
	Checked  int
	Duration time.Duration
}

// Run plans and applies in one go.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	p, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, p)
}

// Plan takes the catalog snapshot, classifies every table, and runs the
// finder phase. It does not modify the store.
func (r *Reconciler) Plan(ctx context.Context) (*Plan, error) {
	r.state = StateStart
	p := &Plan{
		RunID:   uuid.NewString(),
		apply:   &Queue{},
		started: time.Now(),
	}

	tables, err := r.src.Tables()
	if err != nil {
		return nil, r.fail(err)
	}
	p.Tables = tables

	snap, err := TakeSnapshot(ctx, r.db)
	if err != nil {
		return nil, r.fail(err)
	}
	p.Snapshot = snap
	r.state = StateSnapshotTaken
	r.log.Debug("run %s: catalog holds %d tables, specification lists %d", p.RunID, snap.Len(), len(tables))

	finders := &Queue{}
	for _, t := range tables {
		switch Classify(snap, t) {
		case Missing:
			r.report("Queuing table %s for creation.", t.Name)
			r.scheduleCreate(p, t.Name)
			for _, row := range t.StaticRows {
				r.report("Queuing table %s, row %s for creation.", t.Name, row)
				r.scheduleInsert(p, t.Name, row)
			}
		case PresentWithRows:
			for _, row := range t.StaticRows {
				r.scheduleFinder(finders, p, t.Name, row)
			}
		}
	}

	r.state = StateFindersRunning
	if err := finders.Run(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.state = StateFindersDone
	r.log.Debug("run %s: %d tables to create, %d rows to insert, %d rows checked",
		p.RunID, len(p.Missing), len(p.Rows), p.Checked)

	return p, nil
}

// Apply runs the plan's apply phase. A plan can be applied once.
func (r *Reconciler) Apply(ctx context.Context, p *Plan) (*Result, error) {
	if p.applied {
		return nil, ErrPlanApplied
	}
	p.applied = true

	r.state = StateApplyRunning
	if err := p.apply.Run(ctx); err != nil {
		return nil, r.fail(err)
	}
	r.state = StateDone

	res := &Result{
		RunID:    p.RunID,
		Created:  append([]string(nil), p.Missing...),
		Inserted: len(p.Rows),
		Checked:  p.Checked,
		Duration: time.Since(p.started),
	}
	r.log.Debug("run %s: done in %s", p.RunID, res.Duration)
	return res, nil
}

func (r *Reconciler) scheduleCreate(p *Plan, table string) {
	p.Missing = append(p.Missing, table)
	p.apply.Add("create "+table, func(ctx context.Context) error {
		return r.createTable(ctx, table)
	})
}

func (r *Reconciler) scheduleInsert(p *Plan, table string, row tablespec.Row) {
	p.Rows = append(p.Rows, PendingRow{Table: table, Row: row})
	p.apply.Add(fmt.Sprintf("insert %s %s", table, row), func(ctx context.Context) error {
		return r.insertRow(ctx, table, row)
	})
}

func (r *Reconciler) scheduleFinder(finders *Queue, p *Plan, table string, row tablespec.Row) {
	finders.Add(fmt.Sprintf("find %s %s", table, row), func(ctx context.Context) error {
		p.Checked++
		found, err := rowExists(ctx, r.db, table, row)
		if err != nil {
			return err
		}
		if !found {
			r.report("Queuing table %s, row %s", table, row)
			r.scheduleInsert(p, table, row)
		}
		return nil
	})
}

// createTable executes the table's creation statement verbatim.
func (r *Reconciler) createTable(ctx context.Context, table string) error {
	stmt, err := r.src.CreateStatement(table)
	if err != nil {
		return err
	}
	r.report("Creating table %s", table)
	if err := r.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (r *Reconciler) insertRow(ctx context.Context, table string, row tablespec.Row) error {
	r.report("Creating table %s, row %s", table, row)
	query, args := insertSQL(r.db.Dialect(), table, row)
	if err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s, row %s: %w", table, row, err)
	}
	return nil
}

func (r *Reconciler) report(format string, args ...any) {
	r.progress.Report(fmt.Sprintf(format, args...))
}

func (r *Reconciler) fail(err error) error {
	at := r.state
	r.state = StateError
	return &RunError{State: at, Err: err}
}
