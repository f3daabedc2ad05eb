package logging

import (
	"fmt"
	"sync"
)

// Capture is a Logger that records formatted lines for test assertions.
type Capture struct {
	mu    sync.Mutex
	lines []string
}

// NewCapture returns an empty capturing logger.
func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) record(level Level, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf("[%s] %s", level, fmt.Sprintf(format, args...)))
}

// Lines returns a copy of everything logged so far.
func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Capture) Debug(format string, args ...any) { c.record(LevelDebug, format, args...) }
func (c *Capture) Info(format string, args ...any)  { c.record(LevelInfo, format, args...) }
func (c *Capture) Warn(format string, args ...any)  { c.record(LevelWarn, format, args...) }
func (c *Capture) Error(format string, args ...any) { c.record(LevelError, format, args...) }
