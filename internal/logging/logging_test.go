package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestComponentLoggerWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelDebug)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	NewComponentLogger("widget").Info("built %d targets", 3)

	line := buf.String()
	for _, want := range []string{"[INFO]", "[widget]", "built 3 targets"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %q: %s", want, line)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	logger := NewComponentLogger("widget")
	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("filtered levels leaked: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn missing: %s", out)
	}
}

func TestMultiFansOutAndFlattens(t *testing.T) {
	a := NewCapture()
	b := NewCapture()

	logger := Multi(nil, a, Multi(b))
	logger.Warn("disk %s is full", "sda")

	for name, capture := range map[string]*Capture{"a": a, "b": b} {
		lines := capture.Lines()
		if len(lines) != 1 || !strings.Contains(lines[0], "disk sda is full") {
			t.Fatalf("capture %s wrong: %v", name, lines)
		}
		if !strings.HasPrefix(lines[0], "[WARN]") {
			t.Fatalf("capture %s missing level: %v", name, lines)
		}
	}
}

func TestMultiCollapsesToNopAndSingle(t *testing.T) {
	if _, ok := Multi(nil, nil).(nopLogger); !ok {
		t.Fatal("all-nil fan-out must collapse to the nop logger")
	}
	single := NewCapture()
	if got := Multi(single); got != Logger(single) {
		t.Fatal("single-logger fan-out must return the logger itself")
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(nopLogger); !ok {
		t.Fatal("nil must become the nop logger")
	}
	capture := NewCapture()
	if OrNop(capture) != Logger(capture) {
		t.Fatal("non-nil logger must pass through")
	}
}
