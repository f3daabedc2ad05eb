package modify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AndVl1/repoagent/internal/dockerops"
	"github.com/AndVl1/repoagent/internal/errors"
	"github.com/AndVl1/repoagent/internal/forge"
	"github.com/AndVl1/repoagent/internal/gitops"
	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/logging"
	"github.com/AndVl1/repoagent/internal/runner"
	"github.com/AndVl1/repoagent/internal/workflows"
)

const (
	repoURL = "https://git.example.com/acme/widget"

	planJSON = `{"modificationPlan":"Patch the handler to add the endpoint.","filesToModify":["server.go","handler.go"]}`

	verifyPassJSON = `{"success":true,"commandExecuted":"go test ./...","exitCode":0}`
	verifyFailJSON = `{"success":false,"commandExecuted":"go test ./...","exitCode":1,"errorMessage":"Test failed: expected 200 got 500"}`
)

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

const (
	featureBranch = "ai/task-1700000000"
	retryBranch   = "ai/task-1700000000-retry-1700000000"
)

// fakeForge serves the default-branch and pull-request endpoints.
func fakeForge(t *testing.T) *forge.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"default_branch": "main"})
	})
	mux.HandleFunc("/repos/acme/widget/pulls", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"number":   7,
			"html_url": "https://git.example.com/acme/widget/pull/7",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return forge.New(forge.Config{
		BaseURL: server.URL,
		Retry:   errors.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
}

// newCheckout pre-populates a working copy so Clone reuses it without
// shelling out.
func newCheckout(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"server.go", "handler.go"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("package main\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newGitRunner(t *testing.T) *runner.Scripted {
	t.Helper()
	script := runner.NewScripted()
	script.Stub("git rev-parse HEAD", runner.Result{ExitCode: 0, Stdout: []string{"abc123"}}, nil)
	return script
}

func patchCall(id, path string) (string, string, map[string]any) {
	return id, "apply-patch", map[string]any{
		"path":      path,
		"startLine": 1,
		"endLine":   1,
		"content":   "package main // patched",
	}
}

// verifyToolCalls scripts the verification turn: probe, Dockerfile, build,
// run, cleanup, in the order the prompt requires.
func verifyToolCalls() *llm.CompletionResponse {
	return &llm.CompletionResponse{
		ToolCalls: []llm.ToolCall{
			{ID: "v-1", Name: "check-docker-availability", Arguments: map[string]any{}},
			{ID: "v-2", Name: "generate-dockerfile", Arguments: map[string]any{"baseImage": "golang:1.24"}},
			{ID: "v-3", Name: "build-docker-image", Arguments: map[string]any{"tag": "widget-verify"}},
			{ID: "v-4", Name: "run-docker-container", Arguments: map[string]any{"image": "widget-verify", "command": "go test ./..."}},
			{ID: "v-5", Name: "cleanup-docker", Arguments: map[string]any{"image": "widget-verify"}},
		},
		StopReason: "tool_calls",
	}
}

func TestModify_SuccessOpensPullRequest(t *testing.T) {
	main := llm.NewMock("main-model")
	main.EnqueueText("The endpoint belongs in server.go and handler.go.")
	main.EnqueueText(planJSON)
	main.EnqueueToolCall(patchCall("call-1", "server.go"))
	main.EnqueueToolCall(patchCall("call-2", "handler.go"))
	main.EnqueueText("Both files patched.")
	main.Enqueue(verifyToolCalls(), nil)
	main.EnqueueText("All verification steps passed.")
	main.EnqueueText(verifyPassJSON)
	main.EnqueueText("feat: add health endpoint")

	script := newGitRunner(t)
	checkout := newCheckout(t)
	w := New(Deps{
		Main:        main,
		Forge:       fakeForge(t),
		Git:         gitops.New(script, nil),
		Docker:      dockerops.New(script, t.TempDir(), nil),
		SessionPath: checkout,
		Now:         fixedNow,
	})

	bus := graph.NewBus(0)
	resp, err := w.Run(context.Background(), Request{
		RepoURL:      repoURL,
		UserRequest:  "add a health endpoint",
		ContainerEnv: &workflows.ContainerEnv{BaseImage: "golang:1.24", RunCommand: "go test ./..."},
	}, bus)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !resp.Success {
		t.Fatalf("expected success, got %q / %q", resp.Message, resp.ErrorMessage)
	}
	if resp.PRURL != "https://git.example.com/acme/widget/pull/7" {
		t.Fatalf("pr url wrong: %q", resp.PRURL)
	}
	if resp.BranchName != featureBranch {
		t.Fatalf("branch wrong: %q", resp.BranchName)
	}
	if resp.CommitSHA != "abc123" {
		t.Fatalf("sha wrong: %q", resp.CommitSHA)
	}
	if len(resp.FilesModified) != 2 || resp.FilesModified[0] != "server.go" || resp.FilesModified[1] != "handler.go" {
		t.Fatalf("files modified wrong: %v", resp.FilesModified)
	}
	if resp.VerificationStatus != workflows.VerificationSuccess {
		t.Fatalf("status wrong: %s", resp.VerificationStatus)
	}
	if resp.IterationsUsed != 1 {
		t.Fatalf("iterations wrong: %d", resp.IterationsUsed)
	}

	if pushes := script.CallsMatching("git push -u origin " + featureBranch); len(pushes) != 1 {
		t.Fatalf("expected exactly 1 push, got %d", len(pushes))
	}
	if removals := script.CallsMatching("docker rmi"); len(removals) != 1 {
		t.Fatalf("expected the verification image to be removed once, got %d", len(removals))
	}

	patched, err := os.ReadFile(filepath.Join(checkout, "server.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(patched), "patched") {
		t.Fatalf("patch not applied: %q", patched)
	}
}

func TestModify_PushRejectionRetriesOnFreshBranch(t *testing.T) {
	main := llm.NewMock("main-model")
	main.EnqueueText("Only server.go needs the change.")
	main.EnqueueText(`{"modificationPlan":"Patch server.go.","filesToModify":["server.go"]}`)
	main.EnqueueToolCall(patchCall("call-1", "server.go"))
	main.EnqueueText("Patched.")
	main.EnqueueText("fix: correct status code")

	script := newGitRunner(t)
	// Registration order matters: the retry-branch push must win its prefix.
	script.Stub("git push -u origin "+retryBranch, runner.Result{ExitCode: 0}, nil)
	script.Stub("git push -u origin "+featureBranch, runner.Result{
		ExitCode: 1,
		Stdout:   []string{"! [rejected] " + featureBranch + " (non-fast-forward)"},
	}, nil)

	w := New(Deps{
		Main:        main,
		Forge:       fakeForge(t),
		Git:         gitops.New(script, nil),
		SessionPath: newCheckout(t),
		Now:         fixedNow,
	})

	bus := graph.NewBus(0)
	resp, err := w.Run(context.Background(), Request{RepoURL: repoURL, UserRequest: "fix the status code"}, bus)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !resp.Success {
		t.Fatalf("expected success after retry, got %q", resp.Message)
	}
	if resp.BranchName != retryBranch {
		t.Fatalf("branch must be the retry branch: %q", resp.BranchName)
	}
	if resp.PRURL == "" {
		t.Fatal("pr url missing")
	}
	if resp.VerificationStatus != workflows.NotVerified {
		t.Fatalf("status wrong without a container recipe: %s", resp.VerificationStatus)
	}
	if pushes := script.CallsMatching("git push"); len(pushes) != 2 {
		t.Fatalf("expected 2 push attempts, got %d", len(pushes))
	}
}

func TestModify_SecondRejectionFailsWithDiff(t *testing.T) {
	main := llm.NewMock("main-model")
	main.EnqueueText("Only server.go needs the change.")
	main.EnqueueText(`{"modificationPlan":"Patch server.go.","filesToModify":["server.go"]}`)
	main.EnqueueToolCall(patchCall("call-1", "server.go"))
	main.EnqueueText("Patched.")
	main.EnqueueText("fix: correct status code")

	script := newGitRunner(t)
	script.Stub("git push", runner.Result{
		ExitCode: 1,
		Stdout:   []string{"! [rejected] (non-fast-forward)"},
	}, nil)
	script.Stub("git diff --shortstat", runner.Result{
		ExitCode: 0,
		Stdout:   []string{"1 file changed, 1 insertion(+)"},
	}, nil)
	script.Stub("git diff main..", runner.Result{
		ExitCode: 0,
		Stdout:   []string{"diff --git a/server.go b/server.go"},
	}, nil)

	logs := logging.NewCapture()
	w := New(Deps{
		Main:        main,
		Forge:       fakeForge(t),
		Git:         gitops.New(script, nil),
		SessionPath: newCheckout(t),
		Logger:      logs,
		Now:         fixedNow,
	})

	bus := graph.NewBus(0)
	resp, err := w.Run(context.Background(), Request{RepoURL: repoURL, UserRequest: "fix the status code"}, bus)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if resp.Success {
		t.Fatal("second rejection must fail the run")
	}
	if resp.VerificationStatus != workflows.PushFailed {
		t.Fatalf("status wrong: %s", resp.VerificationStatus)
	}
	if resp.BranchName != retryBranch {
		t.Fatalf("branch must be the retry branch: %q", resp.BranchName)
	}
	if !strings.Contains(resp.Diff, "diff --git a/server.go") {
		t.Fatalf("diff missing: %q", resp.Diff)
	}
	if resp.PRURL != "" {
		t.Fatalf("no pull request on a failed push: %q", resp.PRURL)
	}

	var warned bool
	for _, line := range logs.Lines() {
		if strings.HasPrefix(line, "[WARN]") && strings.Contains(line, "push rejected twice") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("missing push-failure warning: %v", logs.Lines())
	}
}

func TestModify_VerificationFailureReportsTestError(t *testing.T) {
	main := llm.NewMock("main-model")
	main.EnqueueText("Only server.go needs the change.")
	main.EnqueueText(`{"modificationPlan":"Patch server.go.","filesToModify":["server.go"]}`)
	main.EnqueueToolCall(patchCall("call-1", "server.go"))
	main.EnqueueText("Patched.")
	main.Enqueue(verifyToolCalls(), nil)
	main.EnqueueText("The test run failed inside the container.")
	main.EnqueueText(verifyFailJSON)

	script := newGitRunner(t)
	script.Stub("docker run", runner.Result{
		ExitCode: 1,
		Stdout:   []string{"FAIL widget_test.go", "Test failed: expected 200 got 500"},
	}, nil)

	w := New(Deps{
		Main:        main,
		Forge:       fakeForge(t),
		Git:         gitops.New(script, nil),
		Docker:      dockerops.New(script, t.TempDir(), nil),
		SessionPath: newCheckout(t),
		Now:         fixedNow,
	})

	bus := graph.NewBus(0)
	resp, err := w.Run(context.Background(), Request{
		RepoURL:      repoURL,
		UserRequest:  "fix the status code",
		ContainerEnv: &workflows.ContainerEnv{BaseImage: "golang:1.24", RunCommand: "go test ./..."},
	}, bus)
	if err != nil {
		t.Fatalf("a failed verification is a terminal response, not a run error: %v", err)
	}

	if resp.Success {
		t.Fatal("expected failure")
	}
	if resp.VerificationStatus != workflows.VerificationFailed {
		t.Fatalf("status wrong: %s", resp.VerificationStatus)
	}
	if !strings.Contains(resp.ErrorMessage, "Test failed") {
		t.Fatalf("error message must carry the failing test: %q", resp.ErrorMessage)
	}
	if resp.IterationsUsed != 1 {
		t.Fatalf("iterations wrong: %d", resp.IterationsUsed)
	}
	if resp.PRURL != "" || resp.CommitSHA != "" {
		t.Fatalf("nothing may be committed or opened on failed verification: %+v", resp)
	}
	if pushes := script.CallsMatching("git push"); len(pushes) != 0 {
		t.Fatalf("push must not run, got %d", len(pushes))
	}
	if removals := script.CallsMatching("docker rmi"); len(removals) != 1 {
		t.Fatalf("the image must be removed even on failure, got %d removals", len(removals))
	}
}

func TestModify_RetryIterationFeedsFailureBack(t *testing.T) {
	main := llm.NewMock("main-model")
	main.EnqueueText("Only server.go needs the change.")
	main.EnqueueText(`{"modificationPlan":"Patch server.go.","filesToModify":["server.go"]}`)
	main.EnqueueToolCall(patchCall("call-1", "server.go"))
	main.EnqueueText("Patched.")
	main.Enqueue(verifyToolCalls(), nil)
	main.EnqueueText("The test run failed inside the container.")
	main.EnqueueText(verifyFailJSON) // first verdict
	main.EnqueueText("Adjusted the patch.")
	main.Enqueue(verifyToolCalls(), nil)
	main.EnqueueText("All verification steps passed.")
	main.EnqueueText(verifyPassJSON) // second verdict
	main.EnqueueText("fix: correct status code")

	script := newGitRunner(t)
	w := New(Deps{
		Main:          main,
		Forge:         fakeForge(t),
		Git:           gitops.New(script, nil),
		Docker:        dockerops.New(script, t.TempDir(), nil),
		MaxIterations: 2,
		SessionPath:   newCheckout(t),
		Now:           fixedNow,
	})

	bus := graph.NewBus(0)
	resp, err := w.Run(context.Background(), Request{
		RepoURL:      repoURL,
		UserRequest:  "fix the status code",
		ContainerEnv: &workflows.ContainerEnv{BaseImage: "golang:1.24", RunCommand: "go test ./..."},
	}, bus)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !resp.Success {
		t.Fatalf("expected success on the second pass, got %q", resp.Message)
	}
	if resp.IterationsUsed != 2 {
		t.Fatalf("iterations wrong: %d", resp.IterationsUsed)
	}
	if resp.VerificationStatus != workflows.VerificationSuccess {
		t.Fatalf("status wrong: %s", resp.VerificationStatus)
	}

	// The second modification pass sees the first verdict's failure.
	requests := main.Requests()
	retryBrief := requests[7].Messages[len(requests[7].Messages)-1].Content
	if !strings.Contains(retryBrief, "previous attempt failed verification") ||
		!strings.Contains(retryBrief, "Test failed: expected 200 got 500") {
		t.Fatalf("retry brief missing the failure context:\n%s", retryBrief)
	}
}
