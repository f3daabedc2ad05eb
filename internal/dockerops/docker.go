// Package dockerops wraps the docker CLI for build/run verification of
// modified repositories. All invocations go through the process runner so the
// workflows stay testable without a daemon.
package dockerops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AndVl1/repoagent/internal/logging"
	"github.com/AndVl1/repoagent/internal/runner"
)

const (
	buildMaxLines = 30
	runMaxLines   = 100

	// DefaultRunTimeout bounds container execution when the caller does not
	// provide one.
	DefaultRunTimeout = 300 * time.Second
)

// Docker shells out to the container CLI.
type Docker struct {
	runner        runner.Runner
	logger        logging.Logger
	workspaceRoot string // CleanupDirectory refuses to touch anything outside
}

// New creates a Docker client. workspaceRoot guards directory cleanup.
func New(r runner.Runner, workspaceRoot string, logger logging.Logger) *Docker {
	return &Docker{runner: r, workspaceRoot: workspaceRoot, logger: logging.OrNop(logger)}
}

// Availability reports whether the container daemon is reachable.
type Availability struct {
	Available bool
	Version   string
	Message   string
}

// DockerfileResult reports Dockerfile generation.
type DockerfileResult struct {
	Path      string
	Generated bool
}

// BuildResult is the outcome of an image build.
type BuildResult struct {
	Success         bool
	ImageName       string
	Logs            []string
	DurationSeconds float64
}

// RunResult is the outcome of a container run.
type RunResult struct {
	Success         bool
	ExitCode        int
	TimedOut        bool
	Logs            []string
	DurationSeconds float64
}

// Available probes the daemon with `docker info`. A CLI that is installed
// but cannot reach the daemon counts as unavailable.
func (d *Docker) Available(ctx context.Context) Availability {
	info, err := d.runner.Run(ctx, runner.Request{
		Args:        []string{"docker", "info"},
		MergeStderr: true,
		MaxLines:    buildMaxLines,
		Timeout:     30 * time.Second,
	})
	if err != nil || info.ExitCode != 0 {
		msg := "docker daemon not reachable"
		if err != nil {
			msg = fmt.Sprintf("docker probe failed: %v", err)
		}
		return Availability{Available: false, Message: msg}
	}

	version := ""
	if out, err := d.runner.Run(ctx, runner.Request{
		Args:     []string{"docker", "--version"},
		MaxLines: 1,
		Timeout:  10 * time.Second,
	}); err == nil && len(out.Stdout) > 0 {
		version = strings.TrimSpace(out.Stdout[0])
	}

	return Availability{Available: true, Version: version, Message: "docker daemon reachable"}
}

// GenerateDockerfile writes a Dockerfile into dir unless one already exists;
// an existing file is never overwritten.
func (d *Docker) GenerateDockerfile(dir, baseImage, buildCmd, runCmd string, port int) (DockerfileResult, error) {
	path := filepath.Join(dir, "Dockerfile")
	if _, err := os.Stat(path); err == nil {
		d.logger.Debug("Dockerfile already present at %s", path)
		return DockerfileResult{Path: path, Generated: false}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", baseImage)
	b.WriteString("WORKDIR /app\nCOPY . .\n\n")
	if buildCmd != "" {
		fmt.Fprintf(&b, "RUN %s\n\n", buildCmd)
	}
	if port > 0 {
		fmt.Fprintf(&b, "EXPOSE %d\n\n", port)
	}
	if runCmd != "" {
		fmt.Fprintf(&b, "CMD %s\n", shellForm(runCmd))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return DockerfileResult{}, fmt.Errorf("write Dockerfile: %w", err)
	}
	return DockerfileResult{Path: path, Generated: true}, nil
}

func shellForm(cmd string) string {
	parts := strings.Fields(cmd)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// BuildImage builds dir with cache disabled. An empty tag is synthesized as
// build-<epoch-ms>.
func (d *Docker) BuildImage(ctx context.Context, dir, tag string) (BuildResult, error) {
	if tag == "" {
		tag = fmt.Sprintf("build-%d", time.Now().UnixMilli())
	}

	start := time.Now()
	result, err := d.runner.Run(ctx, runner.Request{
		WorkDir:     dir,
		Args:        []string{"docker", "build", "--no-cache", "-t", tag, "."},
		MergeStderr: true,
		MaxLines:    buildMaxLines,
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("docker build: %w", err)
	}

	build := BuildResult{
		Success:         result.ExitCode == 0,
		Logs:            result.Stdout,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if build.Success {
		build.ImageName = tag
	}
	return build, nil
}

// RunContainer executes command via the container's shell with --rm and the
// given timeout. Timeout expiry force-kills and reports exit -1.
func (d *Docker) RunContainer(ctx context.Context, image, command string, timeout time.Duration) (RunResult, error) {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	start := time.Now()
	result, err := d.runner.Run(ctx, runner.Request{
		Args:        []string{"docker", "run", "--rm", image, "sh", "-c", command},
		MergeStderr: true,
		MaxLines:    runMaxLines,
		Timeout:     timeout,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("docker run: %w", err)
	}

	return RunResult{
		Success:         result.ExitCode == 0,
		ExitCode:        result.ExitCode,
		TimedOut:        result.TimedOut,
		Logs:            result.Stdout,
		DurationSeconds: time.Since(start).Seconds(),
	}, nil
}

// ImageSize returns the reported size of an image, if it exists.
func (d *Docker) ImageSize(ctx context.Context, image string) (string, bool) {
	result, err := d.runner.Run(ctx, runner.Request{
		Args:     []string{"docker", "images", image, "--format", "{{.Size}}"},
		MaxLines: 1,
	})
	if err != nil || result.ExitCode != 0 || len(result.Stdout) == 0 {
		return "", false
	}
	size := strings.TrimSpace(result.Stdout[0])
	return size, size != ""
}

// RemoveImage removes an image; best-effort.
func (d *Docker) RemoveImage(ctx context.Context, image string) bool {
	result, err := d.runner.Run(ctx, runner.Request{
		Args:        []string{"docker", "rmi", "-f", image},
		MergeStderr: true,
		MaxLines:    buildMaxLines,
	})
	if err != nil || result.ExitCode != 0 {
		d.logger.Warn("failed to remove image %s", image)
		return false
	}
	return true
}

// CleanupDirectory removes dir. It refuses to delete anything outside the
// configured workspace root.
func (d *Docker) CleanupDirectory(dir string) error {
	if d.workspaceRoot == "" {
		return fmt.Errorf("cleanup refused: no workspace root configured")
	}
	absRoot, err := filepath.Abs(d.workspaceRoot)
	if err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("cleanup refused: %s is outside workspace root %s", dir, d.workspaceRoot)
	}
	return os.RemoveAll(absDir)
}
