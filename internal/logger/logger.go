// Package logger configures the server's structured logging: JSON
// records in production, a compact colored line format everywhere else.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Logger wraps slog.Logger so providers can distinguish the app logger
// from arbitrary slog instances.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer      io.Writer
	Environment string
	Level       slog.Level
	AddSource   bool
}

// New creates a logger for the given environment. Production gets
// machine-readable JSON; anything else gets the console handler.
func New(cfg Config) *Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			// Full source paths are noise; the file name is enough.
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Environment == "production" {
		handler = slog.NewJSONHandler(cfg.Writer, opts)
	} else {
		handler = newConsoleHandler(cfg.Writer, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel converts a string to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithError returns a logger carrying the error as an attribute.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With(slog.String("error", err.Error()))}
}

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}

// ANSI escapes for the console handler.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiPurple = "\033[35m"
	ansiFaint  = "\033[2m"
)

// consoleHandler renders one record per line:
//
//	14:03:07.281 INFO  transcode started item_id=/a/b.flac variant=128_default
//
// Attribute keys accumulated through WithGroup are joined with dots
// (hls.cache.hits=3), and values containing whitespace are quoted so
// path-like library IDs stay one token. Attributes keyed "error" are
// painted red to stand out in long transcode logs.
type consoleHandler struct {
	opts   *slog.HandlerOptions
	writer io.Writer
	prefix string      // dotted group path for nested attrs
	attrs  []slog.Attr // pre-resolved attrs from With()
}

func newConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *consoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &consoleHandler{opts: opts, writer: w}
}

// Enabled implements slog.Handler.
func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle implements slog.Handler.
func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.Grow(256)

	b.WriteString(ansiFaint)
	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	b.WriteString(levelColor(r.Level))
	// Pad to the widest tag so messages line up.
	b.WriteString((r.Level.String() + "     ")[:5])
	b.WriteString(ansiReset)
	b.WriteByte(' ')

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		b.WriteString(ansiFaint)
		b.WriteString(filepath.Base(frame.File))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(frame.Line))
		b.WriteString(ansiReset)
		b.WriteByte(' ')
	}

	b.WriteString(r.Message)

	// Pre-set attrs were anchored to their group path in WithAttrs;
	// write them without the current prefix.
	for _, attr := range h.attrs {
		h.writeAttr(&b, "", attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.writeAttr(&b, h.prefix, attr)
		return true
	})

	b.WriteByte('\n')
	_, err := io.WriteString(h.writer, b.String())
	return err
}

// writeAttr appends one " key=value" token, flattening groups into
// dotted keys.
func (h *consoleHandler) writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		nested := joinKey(prefix, attr.Key)
		for _, inner := range value.Group() {
			h.writeAttr(b, nested, inner)
		}
		return
	}

	b.WriteByte(' ')
	key := joinKey(prefix, attr.Key)
	if attr.Key == "error" {
		b.WriteString(ansiRed)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(value.String()))
		b.WriteString(ansiReset)
		return
	}
	b.WriteString(ansiFaint)
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(ansiReset)
	b.WriteString(quoteIfNeeded(value.String()))
}

// WithAttrs implements slog.Handler.
func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		// Anchor pre-set attrs under the current group path now, so a
		// later WithGroup cannot re-prefix them.
		clone.attrs = append(clone.attrs, slog.Attr{
			Key:   joinKey(h.prefix, attr.Key),
			Value: attr.Value,
		})
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// quoteIfNeeded wraps values containing whitespace in quotes; most
// attr values here are item IDs and file paths.
func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t\n") || s == "" {
		return strconv.Quote(s)
	}
	return s
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiGreen
	default:
		return ansiPurple
	}
}
