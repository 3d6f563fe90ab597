package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/maloquacious/goobtool/internal/provision"
	"github.com/maloquacious/goobtool/internal/reconcile"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/tablespec"
	"github.com/spf13/cobra"
)

// errPending is returned by db verify when the store needs provisioning.
var errPending = errors.New("datastore is not fully provisioned")

func newDBCmd(e *env) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	dbInitCmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"create"},
		Short:   "Create missing tables and static rows",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := e.initialize(cmd.Context(), e.provisioner())
			if err != nil {
				return err
			}
			return h.Close()
		},
	}
	dbVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Report missing tables and static rows without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runDBVerify(cmd)
		},
	}
	dbTablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables present in the datastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := e.openHandle(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()
			snap, err := reconcile.TakeSnapshot(cmd.Context(), h)
			if err != nil {
				return err
			}
			for _, name := range snap.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	dbCmd.AddCommand(dbInitCmd, dbVerifyCmd, dbTablesCmd)
	return dbCmd
}

// verifyReport is the JSON summary printed by db verify.
type verifyReport struct {
	Driver        string       `json:"driver"`
	State         string       `json:"state"`
	DBPath        string       `json:"dbPath,omitempty"`
	DBSize        string       `json:"dbSize,omitempty"`
	MissingTables []string     `json:"missingTables"`
	MissingRows   []missingRow `json:"missingRows"`
	CheckedRows   int          `json:"checkedRows"`
}

type missingRow struct {
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// runDBVerify opens the store, plans a run, and prints what it would do.
// It exits with status 2 when work is pending.
func (e *env) runDBVerify(cmd *cobra.Command) error {
	ctx := cmd.Context()
	report := verifyReport{
		Driver:        e.cfg.Driver,
		MissingTables: []string{},
		MissingRows:   []missingRow{},
	}

	if e.cfg.Driver == "sqlite" {
		report.DBPath = e.cfg.DBPath
		exists, err := store.CheckExists(e.cfg.DBPath)
		if err != nil {
			return err
		}
		if !exists {
			report.State = store.StateMissing.String()
			if err := writeJSON(cmd, report); err != nil {
				return err
			}
			return &exitError{code: 2, err: errPending}
		}
		if info, err := os.Stat(e.cfg.DBPath); err == nil {
			report.DBSize = humanize.Bytes(uint64(info.Size()))
		}
	}

	h, err := e.openHandle(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	p := provision.New(provision.WithLogger(e.log))
	plan, err := p.Plan(ctx, h, tablespec.Dir(e.cfg.ConfigDir))
	if err != nil {
		return err
	}

	report.MissingTables = append(report.MissingTables, plan.Missing...)
	for _, r := range plan.Rows {
		report.MissingRows = append(report.MissingRows, missingRow{Table: r.Table, Row: json.RawMessage(r.Row.String())})
	}
	report.CheckedRows = plan.Checked

	state := store.StateReady
	switch {
	case len(plan.Missing) > 0:
		state = store.StateUninitialized
	case len(plan.Rows) > 0:
		state = store.StateIncomplete
	}
	report.State = state.String()

	if err := writeJSON(cmd, report); err != nil {
		return err
	}
	if plan.Pending() {
		return &exitError{code: 2, err: errPending}
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
