// Package graph is the workflow runtime: subgraphs of nodes joined by
// predicated edges, a run-scoped typed session store, and a bounded event
// bus. One run executes one node at a time, so the store needs no locking
// for node-body access.
package graph

import "fmt"

// Session is a run-scoped store. Keys carry their value type; reads are
// checked against it. Never shared across runs.
type Session struct {
	values map[string]any
}

// NewSession creates an empty session store.
func NewSession() *Session {
	return &Session{values: make(map[string]any)}
}

// Key binds a session entry name to its value type.
type Key[T any] struct {
	name string
}

// NewKey declares a typed session key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string { return k.name }

// Get reads a key. A missing key yields the zero value and false, not an
// error.
func Get[T any](s *Session, key Key[T]) (T, bool) {
	var zero T
	raw, ok := s.values[key.name]
	if !ok {
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		// A type mismatch means two keys share a name with different
		// types, which is a programmer error.
		panic(fmt.Sprintf("session key %q holds %T, read as %T", key.name, raw, zero))
	}
	return value, true
}

// Require reads a key that must be present. Absence is an engine invariant
// violation and fails the run.
func Require[T any](s *Session, key Key[T]) (T, error) {
	value, ok := Get(s, key)
	if !ok {
		return value, fmt.Errorf("%w: session key %q", ErrMissingSessionKey, key.name)
	}
	return value, nil
}

// Set writes a key. Only call from node bodies of the owning run.
func Set[T any](s *Session, key Key[T], value T) {
	s.values[key.name] = value
}

// Has reports whether a key is present.
func Has[T any](s *Session, key Key[T]) bool {
	_, ok := s.values[key.name]
	return ok
}

// Delete removes a key.
func Delete[T any](s *Session, key Key[T]) {
	delete(s.values, key.name)
}

// ToolCallLogKey holds the per-run record of executed tool calls, in LLM
// emission order, as "name(serialized-args)" strings.
var ToolCallLogKey = NewKey[[]string]("tool-call-log")

// AppendToolCall records one tool invocation in the session log.
func AppendToolCall(s *Session, entry string) {
	log, _ := Get(s, ToolCallLogKey)
	Set(s, ToolCallLogKey, append(log, entry))
}
