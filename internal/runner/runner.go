// Package runner spawns external commands (git, container CLI) with bounded
// output capture, timeouts, and forced termination. All process execution in
// the module goes through the Runner interface so tests can substitute a
// scripted implementation.
package runner

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AndVl1/repoagent/internal/logging"
)

// DefaultMaxLines bounds captured output when a request does not set MaxLines.
const DefaultMaxLines = 100

// Request describes one external command invocation.
type Request struct {
	WorkDir     string
	Args        []string // Args[0] is the binary
	Timeout     time.Duration
	MergeStderr bool
	MaxLines    int // ring buffer size for captured output
}

// Result is the outcome of a command. A non-zero exit code is a domain
// signal, not an error.
type Result struct {
	ExitCode int
	Stdout   []string // last MaxLines lines
	TimedOut bool
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// New returns a Runner backed by os/exec.
func New(logger logging.Logger) Runner {
	return &execRunner{logger: logging.OrNop(logger)}
}

type execRunner struct {
	logger logging.Logger
}

func (r *execRunner) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Args) == 0 {
		return Result{}, errors.New("runner: empty command")
	}

	maxLines := req.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	buf := newLineRing(maxLines)

	cmd := exec.Command(req.Args[0], req.Args[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Stdout = buf
	if req.MergeStderr {
		cmd.Stderr = buf
	} else {
		cmd.Stderr = io.Discard
	}

	r.logger.Debug("exec: %s (dir=%s timeout=%v)", strings.Join(req.Args, " "), req.WorkDir, req.Timeout)

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case err := <-done:
		buf.flush()
		result := Result{ExitCode: 0, Stdout: buf.lines()}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
			} else {
				return Result{}, err
			}
		}
		return result, nil

	case <-timeoutC:
		_ = cmd.Process.Kill()
		<-done
		buf.flush()
		r.logger.Warn("command timed out after %v: %s", req.Timeout, strings.Join(req.Args, " "))
		return Result{ExitCode: -1, Stdout: buf.lines(), TimedOut: true}, nil

	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return Result{}, ctx.Err()
	}
}

// lineRing is an io.Writer that splits input into lines and retains the last
// N of them.
type lineRing struct {
	mu      sync.Mutex
	max     int
	entries []string
	partial strings.Builder
}

func newLineRing(max int) *lineRing {
	return &lineRing{max: max}
}

func (l *lineRing) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			l.push(l.partial.String())
			l.partial.Reset()
			continue
		}
		l.partial.WriteByte(b)
	}
	return len(p), nil
}

// flush moves any unterminated final line into the ring.
func (l *lineRing) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.partial.Len() > 0 {
		l.push(l.partial.String())
		l.partial.Reset()
	}
}

func (l *lineRing) push(line string) {
	l.entries = append(l.entries, line)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

func (l *lineRing) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
