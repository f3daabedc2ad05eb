package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AndVl1/repoagent/internal/forge"
	"github.com/AndVl1/repoagent/internal/llm"
)

// ForgeTools exposes remote repository browsing (no clone needed) for the
// analysis turn.
type ForgeTools struct {
	client *forge.Client
	repo   forge.Repo
	ref    string
}

// NewForgeTools creates browsing tools over one repository at ref.
func NewForgeTools(client *forge.Client, repo forge.Repo, ref string) *ForgeTools {
	return &ForgeTools{client: client, repo: repo, ref: ref}
}

// Tools returns get-file-tree, read-file-content and search-in-files backed
// by the forge API.
func (f *ForgeTools) Tools() []Tool {
	return []Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get-file-tree",
				Description: "List the repository file tree from the forge, one path per line.",
				Parameters:  llm.ParameterSchema{Type: "object", Properties: map[string]llm.Property{}},
			},
			Handler: f.fileTree,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "read-file-content",
				Description: "Read one file's content from the forge.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path": {Type: "string", Description: "File path within the repository."},
					},
					Required: []string{"path"},
				},
			},
			Handler: f.readFile,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "search-in-files",
				Description: "Search for a substring in file paths of the repository tree.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"query": {Type: "string", Description: "Substring to match against paths."},
					},
					Required: []string{"query"},
				},
			},
			Handler: f.searchPaths,
		},
	}
}

func (f *ForgeTools) fileTree(ctx context.Context, args map[string]any) (Result, error) {
	tree, err := f.client.ListTree(ctx, f.repo, f.ref)
	if err != nil {
		return ErrorResult("list tree: %v", err), nil
	}
	var paths []string
	for _, entry := range tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
		if len(paths) >= maxTreeEntries {
			break
		}
	}
	return Result{
		Content: strings.Join(paths, "\n"),
		Data:    map[string]any{"count": len(paths)},
	}, nil
}

func (f *ForgeTools) readFile(ctx context.Context, args map[string]any) (Result, error) {
	path := stringArg(args, "path")
	content, err := f.client.FileContent(ctx, f.repo, path, f.ref)
	if err != nil {
		return ErrorResult("read %s: %v", path, err), nil
	}
	truncated := false
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes]
		truncated = true
	}
	return Result{Content: content, Data: map[string]any{"truncated": truncated}}, nil
}

func (f *ForgeTools) searchPaths(ctx context.Context, args map[string]any) (Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("empty query"), nil
	}
	tree, err := f.client.ListTree(ctx, f.repo, f.ref)
	if err != nil {
		return ErrorResult("list tree: %v", err), nil
	}
	var matches []string
	for _, entry := range tree {
		if entry.Type == "blob" && strings.Contains(entry.Path, query) {
			matches = append(matches, entry.Path)
		}
		if len(matches) >= maxSearchMatches {
			break
		}
	}
	if len(matches) == 0 {
		return Result{Content: fmt.Sprintf("no paths matching %q", query)}, nil
	}
	return Result{Content: strings.Join(matches, "\n"), Data: map[string]any{"matches": len(matches)}}, nil
}
