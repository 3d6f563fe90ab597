package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maloquacious/goobtool/internal/config"
	"github.com/maloquacious/goobtool/internal/logger"
	"github.com/maloquacious/goobtool/internal/provision"
	"github.com/maloquacious/goobtool/internal/store"
	"github.com/maloquacious/goobtool/internal/store/postgres"
	"github.com/maloquacious/goobtool/internal/store/sqlite"
	"github.com/maloquacious/goobtool/internal/tablespec"
	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"
)

var (
	version   = semver.Version{Minor: 2, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	e := &env{}
	err := newRootCmd(e).Execute()
	e.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "app: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// env is built once per command invocation from flags, environment and file.
type env struct {
	cfg     *config.Config
	log     *logger.SlogLogger
	closeFn func()
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "app",
		Short:         "Goobergine application server and datastore provisioner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to a config file (json, yaml or toml)")
	pf.String("db-path", "", "path to the SQLite database file")
	pf.String("config-dir", "", "directory holding tables.yaml and creation statements")
	pf.String("driver", "", "database driver: sqlite or postgres")
	pf.String("dsn", "", "postgres connection string")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("seq-url", "", "optional Seq server URL for log shipping")

	rootCmd.AddCommand(newServeCmd(e), newDBCmd(e), newVersionCmd())
	return rootCmd
}

func (e *env) load(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	if err := loader.ReadFile(path); err != nil {
		return err
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.log, e.closeFn = logger.Setup(level, cfg.SeqURL)
	logger.Default = e.log
	return nil
}

func (e *env) close() {
	if e.closeFn != nil {
		e.closeFn()
	}
}

// provisioner returns a Provisioner whose progress goes to the log.
func (e *env) provisioner() *provision.Provisioner {
	p := provision.New(provision.WithLogger(e.log))
	p.Subscribe(func(message string) {
		e.log.Info("%s", strings.TrimSpace(message))
	})
	return p
}

// closer is implemented by every store.
type closer interface {
	store.Handle
	Close() error
}

// openHandle opens the configured store for reading without reconciling it.
func (e *env) openHandle(ctx context.Context) (closer, error) {
	switch e.cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, e.cfg.DSN)
	default:
		s := sqlite.New(e.cfg.DBPath)
		if err := s.OpenReadOnly(); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// initialize opens and reconciles the configured store.
func (e *env) initialize(ctx context.Context, p *provision.Provisioner) (closer, error) {
	var (
		h   closer
		err error
	)
	switch e.cfg.Driver {
	case "postgres":
		h, err = postgres.Open(ctx, e.cfg.DSN)
		if err != nil {
			return nil, err
		}
		if _, err = p.InitializeHandle(ctx, h, tablespec.Dir(e.cfg.ConfigDir)); err != nil {
			_ = h.Close()
			return nil, err
		}
	default:
		h, err = p.Initialize(ctx, e.cfg.DBPath, e.cfg.ConfigDir)
		if err != nil {
			return nil, err
		}
	}

	if res := p.Status().Result; res != nil {
		e.log.Info("provisioned %s store: created %d tables, inserted %d rows, checked %d rows in %s (run %s)",
			h.Dialect().Name(), len(res.Created), res.Inserted, res.Checked, res.Duration.Round(time.Millisecond), res.RunID)
	}
	return h, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
