package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalHandlerFiltersBelowLevel(t *testing.T) {
	out := new(bytes.Buffer)
	h := NewTerminalHandler(out, LevelInfo)
	l := NewLogger(h)
	l.Debug("should not appear")
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
	l.Info("hello", "foo", "bar")
	have := out.String()
	if !strings.Contains(have, "hello") || !strings.Contains(have, "foo=bar") {
		t.Fatalf("unexpected output: %q", have)
	}
}

func TestGlogHandlerVerbosity(t *testing.T) {
	out := new(bytes.Buffer)
	glog := NewGlogHandler(NewTerminalHandler(out, LevelTrace))
	glog.Verbosity(LevelCrit)
	l := NewLogger(glog)
	l.Warn("ignored")
	if out.Len() != 0 {
		t.Fatalf("expected message to be filtered, got %q", out.String())
	}
	l.Crit("fatal thing")
	if !strings.Contains(out.String(), "fatal thing") {
		t.Fatalf("expected crit message, got %q", out.String())
	}
}

func TestDiscardIsNoop(t *testing.T) {
	Discard.Info("anything", "a", 1)
	Discard.With("x", "y").Error("still nothing")
}
