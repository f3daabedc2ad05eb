// Package gitops wraps the git CLI behind typed primitives: clone, branch
// management, commit, push with rejection detection, and diff.
package gitops

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AndVl1/repoagent/internal/logging"
	"github.com/AndVl1/repoagent/internal/runner"
)

const gitMaxLines = 100

// Git executes git operations in local working copies.
type Git struct {
	runner runner.Runner
	logger logging.Logger
}

// New creates a Git bound to the given process runner.
func New(r runner.Runner, logger logging.Logger) *Git {
	return &Git{runner: r, logger: logging.OrNop(logger)}
}

// PushStatus reports the outcome of a push attempt.
type PushStatus struct {
	Pushed   bool
	Rejected bool
}

// DiffStat summarizes a diff between two refs.
type DiffStat struct {
	Diff         string
	FilesChanged int
	Insertions   int
	Deletions    int
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (runner.Result, error) {
	return g.runner.Run(ctx, runner.Request{
		WorkDir:     dir,
		Args:        append([]string{"git"}, args...),
		MergeStderr: true,
		MaxLines:    gitMaxLines,
	})
}

func (g *Git) runOK(ctx context.Context, dir string, args ...string) (string, error) {
	result, err := g.run(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(strings.Join(result.Stdout, "\n"))
	if result.ExitCode != 0 {
		return out, fmt.Errorf("git %s: exit %d: %s", strings.Join(args, " "), result.ExitCode, out)
	}
	return out, nil
}

// Clone clones url into destDir. If destDir already exists and is non-empty
// it is treated as already cloned and returned unchanged.
func (g *Git) Clone(ctx context.Context, url, destDir string) (string, error) {
	if entries, err := os.ReadDir(destDir); err == nil && len(entries) > 0 {
		g.logger.Debug("clone target %s already populated, reusing", destDir)
		return destDir, nil
	}
	if _, err := g.runOK(ctx, "", "clone", url, destDir); err != nil {
		return "", fmt.Errorf("clone %s: %w", url, err)
	}
	return destDir, nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := g.runOK(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// CreateBranch checks out base when given, then creates and switches to name.
func (g *Git) CreateBranch(ctx context.Context, path, name, base string) error {
	if base != "" {
		if _, err := g.runOK(ctx, path, "checkout", base); err != nil {
			return fmt.Errorf("checkout base %s: %w", base, err)
		}
	}
	if _, err := g.runOK(ctx, path, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// CheckoutBranch switches to an existing branch.
func (g *Git) CheckoutBranch(ctx context.Context, path, name string) error {
	if _, err := g.runOK(ctx, path, "checkout", name); err != nil {
		return fmt.Errorf("checkout %s: %w", name, err)
	}
	return nil
}

// Commit stages the given files (or everything when files is empty), commits
// with message, and returns the resulting HEAD sha.
func (g *Git) Commit(ctx context.Context, path, message string, files []string) (string, error) {
	if len(files) == 0 {
		if _, err := g.runOK(ctx, path, "add", "-A"); err != nil {
			return "", fmt.Errorf("stage all: %w", err)
		}
	} else {
		args := append([]string{"add", "--"}, files...)
		if _, err := g.runOK(ctx, path, args...); err != nil {
			return "", fmt.Errorf("stage files: %w", err)
		}
	}

	if _, err := g.runOK(ctx, path, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	sha, err := g.runOK(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return sha, nil
}

// Push pushes branch to origin. A refusal containing "rejected" or
// "non-fast-forward" maps to {Pushed:false, Rejected:true}; any other failure
// is returned as an error.
func (g *Git) Push(ctx context.Context, path, branch string, force bool) (PushStatus, error) {
	args := []string{"push", "-u", "origin", branch}
	if force {
		args = append(args, "--force")
	}
	result, err := g.run(ctx, path, args...)
	if err != nil {
		return PushStatus{}, err
	}
	if result.ExitCode == 0 {
		return PushStatus{Pushed: true}, nil
	}

	out := strings.ToLower(strings.Join(result.Stdout, "\n"))
	if strings.Contains(out, "rejected") || strings.Contains(out, "non-fast-forward") {
		g.logger.Info("push of %s rejected by remote", branch)
		return PushStatus{Rejected: true}, nil
	}
	return PushStatus{}, fmt.Errorf("push %s: exit %d: %s", branch, result.ExitCode, strings.Join(result.Stdout, "\n"))
}

// Diff returns the unified diff and stat between base and head.
func (g *Git) Diff(ctx context.Context, path, base, head string) (DiffStat, error) {
	diffOut, err := g.runOK(ctx, path, "diff", base+".."+head)
	if err != nil {
		return DiffStat{}, fmt.Errorf("diff: %w", err)
	}
	statOut, err := g.runOK(ctx, path, "diff", "--shortstat", base+".."+head)
	if err != nil {
		return DiffStat{}, fmt.Errorf("diff stat: %w", err)
	}

	stat := DiffStat{Diff: diffOut}
	stat.FilesChanged, stat.Insertions, stat.Deletions = parseShortStat(statOut)
	return stat, nil
}

var shortStatRe = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

func parseShortStat(out string) (files, insertions, deletions int) {
	m := shortStatRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, 0
	}
	files, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		insertions, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		deletions, _ = strconv.Atoi(m[3])
	}
	return files, insertions, deletions
}

// RetryBranchName derives the branch used for the single push-rejection retry.
func RetryBranchName(original string, now time.Time) string {
	return fmt.Sprintf("%s-retry-%d", original, now.Unix())
}

// FeatureBranchName derives the working branch for a modification run.
func FeatureBranchName(now time.Time) string {
	return fmt.Sprintf("ai/task-%d", now.Unix())
}
