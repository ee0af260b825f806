// Package log provides a leveled logging facade over log/slog, in the shape
// of go-ethereum's own log package: a small set of named levels, a handler
// that colorizes terminal output when attached to a TTY, and a root logger
// that components pick up a named child of via New.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level mirrors go-ethereum's five-level scheme (plus Crit) on top of slog's
// four base levels.
type Level int

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelCrit:
		return slog.Level(12)
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	default: // LevelTrace
		return slog.Level(-8)
	}
}

// Logger is the interface every component depends on. A nil-safe no-op
// implementation (Discard) is used by default so tests never need to wire
// logging explicitly.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

// New returns a Logger writing to the shared handler, annotated with ctx
// (alternating key/value pairs), mirroring go-ethereum's log.New(ctx...).
func New(ctx ...any) Logger {
	return &logger{inner: slog.New(currentHandler()).With(ctx...)}
}

func (l *logger) log(level Level, msg string, ctx []any) {
	l.inner.Log(context.Background(), level.slogLevel(), msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.log(LevelCrit, msg, ctx) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

// discard is the no-op Logger used wherever a component isn't given one.
type discard struct{}

func (discard) Trace(string, ...any)  {}
func (discard) Debug(string, ...any)  {}
func (discard) Info(string, ...any)   {}
func (discard) Warn(string, ...any)   {}
func (discard) Error(string, ...any)  {}
func (discard) Crit(string, ...any)   {}
func (discard) With(...any) Logger    { return discard{} }

// Discard is a Logger that drops everything written to it.
var Discard Logger = discard{}

var handlerRef atomic.Pointer[slog.Handler]

func currentHandler() slog.Handler {
	h := handlerRef.Load()
	if h == nil {
		return defaultHandler()
	}
	return *h
}

func defaultHandler() slog.Handler {
	return NewTerminalHandler(os.Stderr, LevelInfo)
}

// SetDefault replaces the handler used by Root() and future New() calls.
func SetDefault(h slog.Handler) {
	handlerRef.Store(&h)
}

var root = New()

// Root returns the package-level root logger, analogous to go-ethereum's
// log.Root().
func Root() Logger { return root }

// terminalHandler renders records as "LVL [timestamp] msg key=value ...",
// colorizing the level when the underlying writer is a terminal.
type terminalHandler struct {
	out      io.Writer
	minLevel Level
	color    bool
	attrs    []slog.Attr
}

// NewTerminalHandler builds a slog.Handler that writes human-readable lines
// to out, filtering records below minLevel.
func NewTerminalHandler(out io.Writer, minLevel Level) slog.Handler {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
		out = colorable.NewColorable(f)
	}
	return &terminalHandler{out: out, minLevel: minLevel, color: color}
}

// NewTerminalHandlerWithLevel is an alias kept for parity with
// go-ethereum's constructor name (used pervasively in its test suite).
func NewTerminalHandlerWithLevel(out io.Writer, minLevel Level, _ bool) slog.Handler {
	return NewTerminalHandler(out, minLevel)
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= Level(h.minLevel).slogLevel()
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.Format("01-02|15:04:05.000")
	line := levelLabel(r.Level) + " [" + ts + "] " + r.Message
	r.Attrs(func(a slog.Attr) bool {
		line += " " + a.Key + "=" + a.Value.String()
		return true
	})
	for _, a := range h.attrs {
		line += " " + a.Key + "=" + a.Value.String()
	}
	line += "\n"
	_, err := io.WriteString(h.out, line)
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *terminalHandler) WithGroup(_ string) slog.Handler { return h }

func levelLabel(l slog.Level) string {
	switch {
	case l >= 12:
		return "CRIT"
	case l >= slog.LevelError:
		return "ERRO"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	case l >= slog.LevelDebug:
		return "DBUG"
	default:
		return "TRCE"
	}
}

// GlogHandler wraps another handler, allowing runtime verbosity changes —
// mirroring go-ethereum's glog_handler used by cmd/geth's -verbosity flag.
type GlogHandler struct {
	inner atomic.Pointer[slog.Handler]
	level atomic.Int32
}

// NewGlogHandler wraps h, defaulting to LevelInfo verbosity.
func NewGlogHandler(h slog.Handler) *GlogHandler {
	g := &GlogHandler{}
	g.inner.Store(&h)
	g.level.Store(int32(LevelInfo))
	return g
}

// Verbosity sets the minimum level that will be passed through.
func (g *GlogHandler) Verbosity(l Level) { g.level.Store(int32(l)) }

func (g *GlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= Level(g.level.Load()).slogLevel()
}

func (g *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	h := *g.inner.Load()
	return h.Handle(ctx, r)
}

func (g *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h := (*g.inner.Load()).WithAttrs(attrs)
	ng := &GlogHandler{}
	ng.inner.Store(&h)
	ng.level.Store(g.level.Load())
	return ng
}

func (g *GlogHandler) WithGroup(name string) slog.Handler {
	h := (*g.inner.Load()).WithGroup(name)
	ng := &GlogHandler{}
	ng.inner.Store(&h)
	ng.level.Store(g.level.Load())
	return ng
}

// NewLogger wraps an arbitrary slog.Handler as a Logger, matching the
// teacher's log.NewLogger(handler) constructor used throughout its tests.
func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}
