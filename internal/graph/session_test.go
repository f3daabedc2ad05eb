package graph

import (
	"errors"
	"testing"
)

var (
	nameKey  = NewKey[string]("name")
	countKey = NewKey[int]("count")
)

func TestSession_TypedAccess(t *testing.T) {
	s := NewSession()

	if _, ok := Get(s, nameKey); ok {
		t.Fatal("absent key must report ok=false")
	}
	if Has(s, nameKey) {
		t.Fatal("absent key must not be present")
	}

	Set(s, nameKey, "repo")
	Set(s, countKey, 3)

	name, ok := Get(s, nameKey)
	if !ok || name != "repo" {
		t.Fatalf("unexpected read: %q %v", name, ok)
	}
	count, ok := Get(s, countKey)
	if !ok || count != 3 {
		t.Fatalf("unexpected read: %d %v", count, ok)
	}

	Delete(s, nameKey)
	if Has(s, nameKey) {
		t.Fatal("deleted key still present")
	}
}

func TestSession_RequireMissingKey(t *testing.T) {
	s := NewSession()
	_, err := Require(s, nameKey)
	if !errors.Is(err, ErrMissingSessionKey) {
		t.Fatalf("expected ErrMissingSessionKey, got %v", err)
	}
}

func TestSession_ToolCallLogAppendOrder(t *testing.T) {
	s := NewSession()
	AppendToolCall(s, "read-file-content({\"path\":\"a\"})")
	AppendToolCall(s, "search-in-files({\"query\":\"q\"})")

	log, ok := Get(s, ToolCallLogKey)
	if !ok || len(log) != 2 {
		t.Fatalf("unexpected log: %v", log)
	}
	if log[0] != "read-file-content({\"path\":\"a\"})" {
		t.Fatalf("append order not preserved: %v", log)
	}
}
