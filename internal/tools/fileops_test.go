package tools

import (
	"context"
	"strings"
	"testing"
)

func TestFileOps_Tree(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "README.md", "# hi")
	writeRepoFile(t, root, "src/main.go", "package main")
	writeRepoFile(t, root, ".git/config", "ignored")

	ops := NewFileOps(root)
	result, err := ops.Tools()[0].Handler(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	lines := strings.Split(result.Content, "\n")
	if len(lines) != 2 || lines[0] != "README.md" || lines[1] != "src/main.go" {
		t.Fatalf("unexpected tree: %v", lines)
	}
}

func TestFileOps_ReadAndSearch(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "a.txt", "alpha\nneedle here\nomega")
	writeRepoFile(t, root, "b.txt", "nothing")

	ops := NewFileOps(root)

	read, err := ops.Tools()[1].Handler(context.Background(), map[string]any{"path": "a.txt"})
	if err != nil || read.IsError {
		t.Fatalf("read: %v %s", err, read.Content)
	}
	if !strings.Contains(read.Content, "needle here") {
		t.Fatalf("unexpected content %q", read.Content)
	}

	search, err := ops.Tools()[2].Handler(context.Background(), map[string]any{"query": "needle"})
	if err != nil || search.IsError {
		t.Fatalf("search: %v %s", err, search.Content)
	}
	if !strings.Contains(search.Content, "a.txt:2:") {
		t.Fatalf("expected path:line match, got %q", search.Content)
	}
}

func TestFileOps_RefusesEscape(t *testing.T) {
	ops := NewFileOps(t.TempDir())
	result, err := ops.Tools()[1].Handler(context.Background(), map[string]any{"path": "../../etc/passwd"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("path escape must be refused")
	}
}
