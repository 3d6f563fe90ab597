package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Logger defines the Goob logging contract.
// Implementations should support standard log levels and be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Goob logging contract.
// Messages are printf-formatted before they reach the handler.
type SlogLogger struct {
	logger *slog.Logger
}

// New creates a SlogLogger writing text records to w at the given level.
func New(w io.Writer, level slog.Level) *SlogLogger {
	return &SlogLogger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
	}
}

// FromSlog wraps an existing *slog.Logger.
func FromSlog(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// Slog returns the underlying *slog.Logger.
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

// With returns a logger that adds the given attributes to every record.
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...)}
}

func (l *SlogLogger) Info(msg string, args ...any) {
	l.logger.Info(format(msg, args))
}

func (l *SlogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(format(msg, args))
}

func (l *SlogLogger) Error(msg string, args ...any) {
	l.logger.Error(format(msg, args))
}

func (l *SlogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(format(msg, args))
}

func format(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Setup builds the process logger. Records always go to stdout; when seqURL
// is set they are also shipped to that Seq server. The returned function
// flushes and closes the Seq handler.
func Setup(level slog.Level, seqURL string) (*SlogLogger, func()) {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if seqURL == "" {
		return FromSlog(slog.New(console)), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{Level: level}),
	)
	if seqHandler == nil {
		return FromSlog(slog.New(console)), func() {}
	}

	multi := &multiHandler{handlers: []slog.Handler{console, seqHandler}}
	return FromSlog(slog.New(multi)), func() { seqHandler.Close() }
}

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Default provides a global default logger writing to stdout at info level.
var Default Logger = New(os.Stdout, slog.LevelInfo)
