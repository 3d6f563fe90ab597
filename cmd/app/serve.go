package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maloquacious/goobtool/internal/provision"
	"github.com/maloquacious/goobtool/internal/reconcile"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(e *env) *cobra.Command {
	var (
		exitAfter time.Duration
		publicDir string
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Provision the datastore and start the Goobergine server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runServe(cmd.Context(), exitAfter, publicDir)
		},
	}
	serveCmd.Flags().Int("port", 0, "public HTTP port (HTML/HTMX)")
	serveCmd.Flags().Int("admin-port", 0, "admin HTTP port (JSON, loopback only)")
	serveCmd.Flags().Duration("shutdown-timeout", 0, "graceful shutdown timeout")
	serveCmd.Flags().DurationVar(&exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")
	serveCmd.Flags().StringVar(&publicDir, "public", "public", "directory for static public assets")
	return serveCmd
}

// server holds the state shared by the HTTP handlers.
type server struct {
	prov      *provision.Provisioner
	publicDir string
	shutdown  context.CancelFunc

	mu     sync.Mutex
	handle closer
}

func (s *server) setHandle(h closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *server) getHandle() closer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// runServe starts the public (HTML) and admin (JSON) servers and provisions
// the datastore in the background. /ready stays unavailable until
// provisioning succeeds; a provisioning failure stops the server.
func (e *env) runServe(parent context.Context, exitAfter time.Duration, publicDir string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	if exitAfter > 0 {
		e.log.Info("exit-after timer set: %s", exitAfter)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, exitAfter)
		defer cancel()
	}
	ctx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	s := &server{
		prov:      e.provisioner(),
		publicDir: publicDir,
		shutdown:  shutdown,
	}

	publicSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", e.cfg.Port),
		Handler: s.publicMux(),
	}

	// Bind admin to 127.0.0.1 only (loopback enforcement)
	adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", e.cfg.AdminPort))
	if err != nil {
		return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
	}
	adminSrv := &http.Server{
		Handler: s.adminMux(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.log.Info("public server listening on :%d", e.cfg.Port)
		if err := publicSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("public server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		e.log.Info("admin server listening on 127.0.0.1:%d (JSON-only)", e.cfg.AdminPort)
		if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		h, err := e.initialize(gctx, s.prov)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("provisioning failed: %w", err)
		}
		s.setHandle(h)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
		defer cancel()
		_ = publicSrv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
		return nil
	})

	err = g.Wait()
	if h := s.getHandle(); h != nil {
		if cerr := h.Close(); cerr != nil {
			e.log.Warn("closing datastore: %v", cerr)
		}
	}
	if err != nil {
		e.log.Error("server error: %v", err)
		return err
	}
	e.log.Info("shutdown complete")
	return nil
}

func (s *server) publicMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Serve /public (index.html) by default
		http.ServeFile(w, r, filepath.Join(s.publicDir, "index.html"))
	})

	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.prov.Status().Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("PROVISIONING"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	// Static under /public/* (maps to ./public)
	mux.Handle("/public/", http.StripPrefix("/public/", http.FileServer(http.Dir(s.publicDir))))
	return mux
}

func (s *server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/admin/status", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := s.prov.Status()
		resp := map[string]any{
			"version":   version.String(),
			"buildDate": buildDate,
			"time":      time.Now().UTC().Format(time.RFC3339),
			"mode":      mode(st),
		}
		if st.Result != nil {
			resp["lastRun"] = runSummary(st.Result)
		}
		if st.Err != nil {
			resp["error"] = st.Err.Error()
		}
		_ = json.NewEncoder(w).Encode(resp)
	})))

	mux.Handle("/admin/tables", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := s.getHandle()
		if h == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "datastore is still provisioning")
			return
		}
		snap, err := reconcile.TakeSnapshot(r.Context(), h)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "catalog_error", err.Error())
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tables": snap.Names()})
	})))

	mux.Handle("/admin/shutdown", jsonOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "shutting down"})
		go func() {
			// give the response a moment to flush
			time.Sleep(200 * time.Millisecond)
			s.shutdown()
		}()
	})))

	return mux
}

func mode(st provision.Status) string {
	switch {
	case st.Ready:
		return "running"
	case st.Err != nil:
		return "failed"
	}
	return "provisioning"
}

func runSummary(res *reconcile.Result) map[string]any {
	return map[string]any{
		"runId":    res.RunID,
		"created":  res.Created,
		"inserted": res.Inserted,
		"checked":  res.Checked,
		"duration": res.Duration.String(),
	}
}

// jsonOnly enforces JSON-only contract for admin routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Require Accept: application/json (at least for admin)
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") && accept != "" {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}
