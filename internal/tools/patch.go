package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/AndVl1/repoagent/internal/llm"
)

// LinePatch replaces the inclusive 1-indexed line range [StartLine, EndLine]
// with Content.
type LinePatch struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Content   string `json:"content"`
}

// PatchOps exposes file-mutation tools over one repository checkout.
// onModified is called once per touched path so the workflow can record the
// modified-file set.
type PatchOps struct {
	fileOps    *FileOps
	onModified func(path string)
}

// NewPatchOps creates mutation tools rooted at the repository directory.
func NewPatchOps(root string, onModified func(path string)) *PatchOps {
	if onModified == nil {
		onModified = func(string) {}
	}
	return &PatchOps{fileOps: NewFileOps(root), onModified: onModified}
}

var patchProperties = map[string]llm.Property{
	"startLine": {Type: "integer", Description: "First line to replace, 1-indexed inclusive."},
	"endLine":   {Type: "integer", Description: "Last line to replace, 1-indexed inclusive."},
	"content":   {Type: "string", Description: "Replacement text for the range."},
}

// Tools returns apply-patch, apply-patches, create-file and delete-file.
func (p *PatchOps) Tools() []Tool {
	patchItem := llm.Property{Type: "object"}
	return []Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "apply-patch",
				Description: "Replace an inclusive 1-indexed line range of a file.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path":      {Type: "string", Description: "File path relative to the repository root."},
						"startLine": patchProperties["startLine"],
						"endLine":   patchProperties["endLine"],
						"content":   patchProperties["content"],
					},
					Required: []string{"path", "startLine", "endLine", "content"},
				},
			},
			Handler: p.applyPatch,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "apply-patches",
				Description: "Apply several line patches to one file. Patches are applied from highest start line to lowest so earlier line numbers stay valid.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path":    {Type: "string", Description: "File path relative to the repository root."},
						"patches": {Type: "array", Description: "Patches with startLine, endLine, content.", Items: &patchItem},
					},
					Required: []string{"path", "patches"},
				},
			},
			Handler: p.applyPatches,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "create-file",
				Description: "Create a new file with the given content.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path":    {Type: "string", Description: "File path relative to the repository root."},
						"content": {Type: "string", Description: "File content."},
					},
					Required: []string{"path", "content"},
				},
			},
			Handler: p.createFile,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "delete-file",
				Description: "Delete a file.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path": {Type: "string", Description: "File path relative to the repository root."},
					},
					Required: []string{"path"},
				},
			},
			Handler: p.deleteFile,
		},
	}
}

func intArg(args map[string]any, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// ApplyLinePatches applies patches to content, highest start line first, so
// each patch's original line numbers remain valid.
func ApplyLinePatches(content string, patches []LinePatch) (string, error) {
	sorted := make([]LinePatch, len(patches))
	copy(sorted, patches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartLine > sorted[j].StartLine
	})

	lines := strings.Split(content, "\n")
	for _, patch := range sorted {
		if patch.StartLine < 1 || patch.EndLine < patch.StartLine || patch.EndLine > len(lines) {
			return "", fmt.Errorf("patch range %d..%d out of bounds for %d lines", patch.StartLine, patch.EndLine, len(lines))
		}
		replacement := strings.Split(patch.Content, "\n")
		updated := make([]string, 0, len(lines)-(patch.EndLine-patch.StartLine+1)+len(replacement))
		updated = append(updated, lines[:patch.StartLine-1]...)
		updated = append(updated, replacement...)
		updated = append(updated, lines[patch.EndLine:]...)
		lines = updated
	}
	return strings.Join(lines, "\n"), nil
}

func (p *PatchOps) applyPatch(ctx context.Context, args map[string]any) (Result, error) {
	start, okStart := intArg(args, "startLine")
	end, okEnd := intArg(args, "endLine")
	if !okStart || !okEnd {
		return ErrorResult("startLine and endLine must be integers"), nil
	}
	return p.patchFile(stringArg(args, "path"), []LinePatch{{
		StartLine: start,
		EndLine:   end,
		Content:   stringArg(args, "content"),
	}})
}

func (p *PatchOps) applyPatches(ctx context.Context, args map[string]any) (Result, error) {
	rawList, ok := args["patches"].([]any)
	if !ok || len(rawList) == 0 {
		return ErrorResult("patches must be a non-empty array"), nil
	}
	patches := make([]LinePatch, 0, len(rawList))
	for i, raw := range rawList {
		obj, ok := raw.(map[string]any)
		if !ok {
			return ErrorResult("patch %d is not an object", i), nil
		}
		start, okStart := intArg(obj, "startLine")
		end, okEnd := intArg(obj, "endLine")
		content, _ := obj["content"].(string)
		if !okStart || !okEnd {
			return ErrorResult("patch %d missing startLine/endLine", i), nil
		}
		patches = append(patches, LinePatch{StartLine: start, EndLine: end, Content: content})
	}
	return p.patchFile(stringArg(args, "path"), patches)
}

func (p *PatchOps) patchFile(relPath string, patches []LinePatch) (Result, error) {
	path, err := p.fileOps.resolve(relPath)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult("read %s: %v", relPath, err), nil
	}

	updated, err := ApplyLinePatches(string(original), patches)
	if err != nil {
		return ErrorResult("patch %s: %v", relPath, err), nil
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return ErrorResult("write %s: %v", relPath, err), nil
	}
	p.onModified(relPath)

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(original), updated, false)
	dmp.DiffCleanupSemantic(diffs)

	return Result{
		Content: fmt.Sprintf("applied %d patch(es) to %s", len(patches), relPath),
		Data: map[string]any{
			"path":    relPath,
			"patches": len(patches),
			"diff":    dmp.DiffPrettyText(diffs),
		},
	}, nil
}

func (p *PatchOps) createFile(ctx context.Context, args map[string]any) (Result, error) {
	relPath := stringArg(args, "path")
	path, err := p.fileOps.resolve(relPath)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	if _, err := os.Stat(path); err == nil {
		return ErrorResult("%s already exists; patch it instead", relPath), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrorResult("create %s: %v", relPath, err), nil
	}
	if err := os.WriteFile(path, []byte(stringArg(args, "content")), 0o644); err != nil {
		return ErrorResult("create %s: %v", relPath, err), nil
	}
	p.onModified(relPath)
	return Result{Content: fmt.Sprintf("created %s", relPath), Data: map[string]any{"path": relPath}}, nil
}

func (p *PatchOps) deleteFile(ctx context.Context, args map[string]any) (Result, error) {
	relPath := stringArg(args, "path")
	path, err := p.fileOps.resolve(relPath)
	if err != nil {
		return ErrorResult("%v", err), nil
	}
	if info, err := os.Stat(path); err != nil {
		return ErrorResult("delete %s: %v", relPath, err), nil
	} else if info.IsDir() {
		return ErrorResult("%s is a directory", relPath), nil
	}
	if err := os.Remove(path); err != nil {
		return ErrorResult("delete %s: %v", relPath, err), nil
	}
	p.onModified(relPath)
	return Result{Content: fmt.Sprintf("deleted %s", relPath), Data: map[string]any{"path": relPath}}, nil
}
