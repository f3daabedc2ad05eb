package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AndVl1/repoagent/internal/dockerops"
	"github.com/AndVl1/repoagent/internal/llm"
)

// DockerTools exposes the container primitives to the verification LLM turn.
// workDir is the repository checkout being verified.
type DockerTools struct {
	docker  *dockerops.Docker
	workDir string
}

// NewDockerTools creates container tools over one checkout.
func NewDockerTools(docker *dockerops.Docker, workDir string) *DockerTools {
	return &DockerTools{docker: docker, workDir: workDir}
}

// Tools returns the verification tool set, in the order the verification
// prompt requires them to be used.
func (d *DockerTools) Tools() []Tool {
	return []Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "check-docker-availability",
				Description: "Probe whether the container daemon is reachable.",
				Parameters:  llm.ParameterSchema{Type: "object", Properties: map[string]llm.Property{}},
			},
			Handler: d.checkAvailability,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "generate-dockerfile",
				Description: "Generate a Dockerfile in the checkout unless one already exists.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"baseImage":    {Type: "string", Description: "Base image, e.g. golang:1.24."},
						"buildCommand": {Type: "string", Description: "Build command run at image build time."},
						"runCommand":   {Type: "string", Description: "Default command of the image."},
						"port":         {Type: "integer", Description: "Port to expose, if any."},
					},
					Required: []string{"baseImage"},
				},
			},
			Handler: d.generateDockerfile,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "build-docker-image",
				Description: "Build the checkout into an image with cache disabled.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"tag": {Type: "string", Description: "Image tag; synthesized when empty."},
					},
				},
			},
			Handler: d.buildImage,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "run-docker-container",
				Description: "Run a command in a container from the built image; the container is removed on exit.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"image":          {Type: "string", Description: "Image to run."},
						"command":        {Type: "string", Description: "Command executed via the container shell."},
						"timeoutSeconds": {Type: "integer", Description: "Force-kill after this many seconds (default 300)."},
					},
					Required: []string{"image", "command"},
				},
			},
			Handler: d.runContainer,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "cleanup-docker",
				Description: "Remove the built image.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"image": {Type: "string", Description: "Image to remove."},
					},
					Required: []string{"image"},
				},
			},
			Handler: d.cleanup,
		},
	}
}

func (d *DockerTools) checkAvailability(ctx context.Context, args map[string]any) (Result, error) {
	avail := d.docker.Available(ctx)
	return Result{
		Content: avail.Message,
		Data: map[string]any{
			"available": avail.Available,
			"version":   avail.Version,
		},
		IsError: !avail.Available,
	}, nil
}

func (d *DockerTools) generateDockerfile(ctx context.Context, args map[string]any) (Result, error) {
	port, _ := intArg(args, "port")
	result, err := d.docker.GenerateDockerfile(d.workDir,
		stringArg(args, "baseImage"),
		stringArg(args, "buildCommand"),
		stringArg(args, "runCommand"),
		port)
	if err != nil {
		return ErrorResult("generate Dockerfile: %v", err), nil
	}
	content := "Dockerfile generated"
	if !result.Generated {
		content = "existing Dockerfile kept"
	}
	return Result{
		Content: content,
		Data:    map[string]any{"path": result.Path, "generated": result.Generated},
	}, nil
}

func (d *DockerTools) buildImage(ctx context.Context, args map[string]any) (Result, error) {
	build, err := d.docker.BuildImage(ctx, d.workDir, stringArg(args, "tag"))
	if err != nil {
		return ErrorResult("build image: %v", err), nil
	}
	data := map[string]any{
		"success":         build.Success,
		"imageName":       build.ImageName,
		"durationSeconds": build.DurationSeconds,
		"logs":            build.Logs,
	}
	if !build.Success {
		return Result{
			Content: "build failed:\n" + strings.Join(build.Logs, "\n"),
			Data:    data,
			IsError: true,
		}, nil
	}
	return Result{Content: fmt.Sprintf("built image %s", build.ImageName), Data: data}, nil
}

func (d *DockerTools) runContainer(ctx context.Context, args map[string]any) (Result, error) {
	timeoutSec, _ := intArg(args, "timeoutSeconds")
	run, err := d.docker.RunContainer(ctx,
		stringArg(args, "image"),
		stringArg(args, "command"),
		time.Duration(timeoutSec)*time.Second)
	if err != nil {
		return ErrorResult("run container: %v", err), nil
	}
	data := map[string]any{
		"success":         run.Success,
		"exitCode":        run.ExitCode,
		"timedOut":        run.TimedOut,
		"durationSeconds": run.DurationSeconds,
		"logs":            run.Logs,
	}
	if !run.Success {
		return Result{
			Content: fmt.Sprintf("container exited %d:\n%s", run.ExitCode, strings.Join(run.Logs, "\n")),
			Data:    data,
			IsError: true,
		}, nil
	}
	return Result{Content: "container run succeeded:\n" + strings.Join(run.Logs, "\n"), Data: data}, nil
}

func (d *DockerTools) cleanup(ctx context.Context, args map[string]any) (Result, error) {
	image := stringArg(args, "image")
	removed := d.docker.RemoveImage(ctx, image)
	return Result{
		Content: fmt.Sprintf("image %s removed=%v", image, removed),
		Data:    map[string]any{"removed": removed},
	}, nil
}
