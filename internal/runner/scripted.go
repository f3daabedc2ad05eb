package runner

import (
	"context"
	"strings"
	"sync"
)

// stub pairs a command prefix with a canned response.
type stub struct {
	prefix string
	result Result
	err    error
}

// Scripted is a Runner for tests. Stubs match on the space-joined argument
// prefix in registration order; unmatched commands succeed with no output.
type Scripted struct {
	mu    sync.Mutex
	stubs []stub
	calls []Request
}

// NewScripted returns an empty scripted runner.
func NewScripted() *Scripted {
	return &Scripted{}
}

// Stub registers a canned response for commands whose space-joined arguments
// start with prefix.
func (s *Scripted) Stub(prefix string, result Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, stub{prefix: prefix, result: result, err: err})
}

// Calls returns every request seen so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsMatching returns the requests whose joined arguments start with prefix.
func (s *Scripted) CallsMatching(prefix string) []Request {
	var out []Request
	for _, call := range s.Calls() {
		if strings.HasPrefix(strings.Join(call.Args, " "), prefix) {
			out = append(out, call)
		}
	}
	return out
}

func (s *Scripted) Run(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, req)
	joined := strings.Join(req.Args, " ")
	for _, st := range s.stubs {
		if strings.HasPrefix(joined, st.prefix) {
			s.mu.Unlock()
			return st.result, st.err
		}
	}
	s.mu.Unlock()

	return Result{ExitCode: 0}, nil
}
