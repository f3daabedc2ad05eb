package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRepoFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyLinePatches_SingleRange(t *testing.T) {
	out, err := ApplyLinePatches("a\nb\nc\nd", []LinePatch{{StartLine: 2, EndLine: 3, Content: "X"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out != "a\nX\nd" {
		t.Fatalf("got %q", out)
	}
}

func TestApplyLinePatches_SortedEqualsSimulated(t *testing.T) {
	original := "l1\nl2\nl3\nl4\nl5\nl6\nl7\nl8"
	patches := []LinePatch{
		{StartLine: 2, EndLine: 2, Content: "L2a\nL2b"},
		{StartLine: 6, EndLine: 7, Content: "L67"},
		{StartLine: 4, EndLine: 4, Content: "L4"},
	}

	got, err := ApplyLinePatches(original, patches)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Simulate each patch against the original line numbering: all ranges
	// refer to original lines, so the combined result can be computed by
	// slicing the original once.
	want := strings.Join([]string{"l1", "L2a", "L2b", "l3", "L4", "l5", "L67", "l8"}, "\n")
	if got != want {
		t.Fatalf("sorted application diverged:\n got %q\nwant %q", got, want)
	}
}

func TestApplyLinePatches_OutOfBounds(t *testing.T) {
	if _, err := ApplyLinePatches("a\nb", []LinePatch{{StartLine: 1, EndLine: 5, Content: "x"}}); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
	if _, err := ApplyLinePatches("a\nb", []LinePatch{{StartLine: 0, EndLine: 1, Content: "x"}}); err == nil {
		t.Fatal("expected 1-indexed bounds check")
	}
}

func TestPatchOps_ApplyPatchTool(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	var modified []string
	ops := NewPatchOps(root, func(path string) { modified = append(modified, path) })
	handler := ops.Tools()[0].Handler

	result, err := handler(context.Background(), map[string]any{
		"path":      "main.go",
		"startLine": float64(3),
		"endLine":   float64(3),
		"content":   "func main() { println(\"hi\") }",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Data["diff"] == "" {
		t.Fatal("result must carry a diff")
	}

	content, _ := os.ReadFile(filepath.Join(root, "main.go"))
	if !strings.Contains(string(content), `println("hi")`) {
		t.Fatalf("file not patched: %s", content)
	}
	if len(modified) != 1 || modified[0] != "main.go" {
		t.Fatalf("modified callback not fired: %v", modified)
	}
}

func TestPatchOps_ApplyPatchesTool(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "list.txt", "one\ntwo\nthree\nfour")

	ops := NewPatchOps(root, nil)
	handler := ops.Tools()[1].Handler

	result, err := handler(context.Background(), map[string]any{
		"path": "list.txt",
		"patches": []any{
			map[string]any{"startLine": float64(1), "endLine": float64(1), "content": "ONE"},
			map[string]any{"startLine": float64(3), "endLine": float64(4), "content": "REST"},
		},
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}

	content, _ := os.ReadFile(filepath.Join(root, "list.txt"))
	if string(content) != "ONE\ntwo\nREST" {
		t.Fatalf("got %q", content)
	}
}

func TestPatchOps_CreateAndDelete(t *testing.T) {
	root := t.TempDir()
	ops := NewPatchOps(root, nil)
	create := ops.Tools()[2].Handler
	del := ops.Tools()[3].Handler

	if result, _ := create(context.Background(), map[string]any{"path": "pkg/new.go", "content": "package pkg\n"}); result.IsError {
		t.Fatalf("create failed: %s", result.Content)
	}
	if _, err := os.Stat(filepath.Join(root, "pkg", "new.go")); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	// Creating over an existing file is refused.
	if result, _ := create(context.Background(), map[string]any{"path": "pkg/new.go", "content": "x"}); !result.IsError {
		t.Fatal("create must refuse existing files")
	}

	if result, _ := del(context.Background(), map[string]any{"path": "pkg/new.go"}); result.IsError {
		t.Fatalf("delete failed: %s", result.Content)
	}
	if _, err := os.Stat(filepath.Join(root, "pkg", "new.go")); !os.IsNotExist(err) {
		t.Fatal("file not deleted")
	}
}

func TestPatchOps_RefusesEscape(t *testing.T) {
	ops := NewPatchOps(t.TempDir(), nil)
	del := ops.Tools()[3].Handler
	if result, _ := del(context.Background(), map[string]any{"path": "../outside.txt"}); !result.IsError {
		t.Fatal("path escape must be refused")
	}
}
