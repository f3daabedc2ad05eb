package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AndVl1/repoagent/internal/llm"
)

const (
	maxReadBytes     = 256 * 1024
	maxSearchMatches = 50
	maxTreeEntries   = 500
)

// FileOps exposes read-only filesystem tools over one repository checkout.
// Every path argument is resolved relative to root and must stay inside it.
type FileOps struct {
	root string
}

// NewFileOps creates file tools rooted at the repository directory.
func NewFileOps(root string) *FileOps {
	return &FileOps{root: root}
}

// Tools returns get-file-tree, read-file-content and search-in-files.
func (f *FileOps) Tools() []Tool {
	return []Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get-file-tree",
				Description: "List the repository file tree as relative paths, one per line.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path": {Type: "string", Description: "Subdirectory to list; defaults to the repository root."},
					},
				},
			},
			Handler: f.fileTree,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "read-file-content",
				Description: "Read one file's content.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"path": {Type: "string", Description: "File path relative to the repository root."},
					},
					Required: []string{"path"},
				},
			},
			Handler: f.readFile,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "search-in-files",
				Description: "Search file contents for a substring; returns path:line matches.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"query": {Type: "string", Description: "Substring to search for."},
						"path":  {Type: "string", Description: "Restrict search to this subdirectory."},
					},
					Required: []string{"query"},
				},
			},
			Handler: f.search,
		},
	}
}

// resolve maps a tool-supplied path into the root, rejecting escapes.
func (f *FileOps) resolve(rel string) (string, error) {
	if rel == "" || rel == "." {
		return f.root, nil
	}
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	resolved, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	rootAbs, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	check, err := filepath.Rel(rootAbs, resolved)
	if err != nil || check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the repository", rel)
	}
	return resolved, nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func (f *FileOps) fileTree(ctx context.Context, args map[string]any) (Result, error) {
	start, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return ErrorResult("%v", err), nil
	}

	var paths []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		if len(paths) >= maxTreeEntries {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return ErrorResult("walk tree: %v", err), nil
	}

	sort.Strings(paths)
	return Result{
		Content: strings.Join(paths, "\n"),
		Data:    map[string]any{"count": len(paths)},
	}, nil
}

func (f *FileOps) readFile(ctx context.Context, args map[string]any) (Result, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return ErrorResult("%v", err), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return ErrorResult("read %s: %v", stringArg(args, "path"), err), nil
	}
	if info.IsDir() {
		return ErrorResult("%s is a directory", stringArg(args, "path")), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ErrorResult("read %s: %v", stringArg(args, "path"), err), nil
	}
	truncated := false
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes]
		truncated = true
	}
	return Result{
		Content: string(content),
		Data:    map[string]any{"truncated": truncated, "sizeBytes": info.Size()},
	}, nil
}

func (f *FileOps) search(ctx context.Context, args map[string]any) (Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("empty query"), nil
	}
	start, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return ErrorResult("%v", err), nil
	}

	var matches []string
	err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return nil // unreadable files are skipped, not fatal
		}
		defer func() { _ = file.Close() }()

		rel, _ := filepath.Rel(f.root, path)
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			if strings.Contains(scanner.Text(), query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", filepath.ToSlash(rel), line, strings.TrimSpace(scanner.Text())))
				if len(matches) >= maxSearchMatches {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return ErrorResult("search: %v", err), nil
	}

	if len(matches) == 0 {
		return Result{Content: fmt.Sprintf("no matches for %q", query)}, nil
	}
	return Result{
		Content: strings.Join(matches, "\n"),
		Data:    map[string]any{"matches": len(matches)},
	}, nil
}
