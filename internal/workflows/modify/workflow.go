package modify

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AndVl1/repoagent/internal/dockerops"
	"github.com/AndVl1/repoagent/internal/forge"
	"github.com/AndVl1/repoagent/internal/gitops"
	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/logging"
	"github.com/AndVl1/repoagent/internal/rag"
	"github.com/AndVl1/repoagent/internal/tools"
	"github.com/AndVl1/repoagent/internal/workflows"
)

const (
	totalSteps = 6

	defaultRepairRetries = 2
	defaultMaxIterations = 1

	fallbackCommitMessage = "chore: apply requested changes"
)

// Deps wires the workflow's collaborators. Main, Forge and Git are required;
// Docker enables container verification and Indexer enables retrieval.
type Deps struct {
	Main          llm.StreamingClient
	Repair        llm.Client // nil falls back to Main
	RepairRetries int        // 0 means defaultRepairRetries
	MaxIterations int        // modify+verify passes, 0 means defaultMaxIterations
	Forge         *forge.Client
	Git           *gitops.Git
	Docker        *dockerops.Docker
	Indexer       *rag.Indexer
	MinSimilarity float64
	WorkspaceRoot string
	// SessionPath, when set, reuses an existing checkout instead of cloning
	// into the workspace.
	SessionPath string
	Logger      logging.Logger
	// Now is the clock used for branch names; nil means time.Now.
	Now func() time.Time
}

// Workflow is the modification pipeline. One Workflow serves many runs; all
// per-run state lives in the run's session.
type Workflow struct {
	deps Deps
	sg   *graph.Subgraph
}

// Session keys private to the modification run.
var (
	keyRequest       = graph.NewKey[Request]("modify.request")
	keyRepo          = graph.NewKey[forge.Repo]("modify.repo")
	keyCheckout      = graph.NewKey[string]("modify.checkout")
	keyDefaultBranch = graph.NewKey[string]("modify.default-branch")
	keyBranch        = graph.NewKey[string]("modify.branch")
	keyPlan          = graph.NewKey[ModificationPlan]("modify.plan")
	keyFiles         = graph.NewKey[[]string]("modify.files-modified")
	keyIterations    = graph.NewKey[int]("modify.iterations")
	keyVerify        = graph.NewKey[*workflows.VerificationResult]("modify.verification")
	keyGit           = graph.NewKey[workflows.GitResult]("modify.git-result")
	keyStatus        = graph.NewKey[workflows.VerificationStatus]("modify.status")
	keyError         = graph.NewKey[string]("modify.error")
	keyIndexed       = graph.NewKey[bool]("modify.indexed")
)

// outcome routes a step: forward, back into another modification pass, or
// straight to finalize.
type outcome struct {
	failed bool
	retry  bool
}

func failedOutcome(output any) bool {
	o, ok := output.(outcome)
	return ok && o.failed
}

func retryOutcome(output any) bool {
	o, ok := output.(outcome)
	return ok && o.retry
}

// New builds the workflow graph around the given dependencies.
func New(deps Deps) *Workflow {
	if deps.Repair == nil {
		deps.Repair = deps.Main
	}
	if deps.RepairRetries == 0 {
		deps.RepairRetries = defaultRepairRetries
	}
	if deps.MaxIterations == 0 {
		deps.MaxIterations = defaultMaxIterations
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = logging.OrNop(deps.Logger)

	w := &Workflow{deps: deps}
	w.sg = graph.NewBuilder("modify").
		NodeWithDescription("setup", "Clone the repository and create the working branch", w.setup).
		NodeWithDescription("analyze-code", "Plan the modification", w.analyzeCode).
		NodeWithDescription("modify-code", "Apply the modification with file tools", w.modifyCode).
		NodeWithDescription("verify-container", "Verify the change in a container", w.verifyContainer).
		NodeWithDescription("git-operations", "Commit and push the working branch", w.gitOperations).
		NodeWithDescription("finalize", "Assemble the response", w.finalize).
		Edge("setup", "finalize", graph.OnCondition(failedOutcome)).
		Edge("setup", "analyze-code", graph.Always).
		Edge("analyze-code", "finalize", graph.OnCondition(failedOutcome)).
		Edge("analyze-code", "modify-code", graph.Always).
		Edge("modify-code", "verify-container", graph.Always).
		Edge("verify-container", "modify-code", graph.OnCondition(retryOutcome)).
		Edge("verify-container", "finalize", graph.OnCondition(failedOutcome)).
		Edge("verify-container", "git-operations", graph.Always).
		Edge("git-operations", "finalize", graph.Always).
		Start("setup").
		Finish("finalize").
		MustBuild()
	return w
}

// Run executes one modification. The returned Response is the terminal value
// whether the change landed or not; an error return means the run itself
// broke.
func (w *Workflow) Run(ctx context.Context, req Request, bus *graph.Bus) (*Response, error) {
	rc := graph.NewRunContext(bus, w.deps.Logger)
	graph.Set(rc.Session, keyRequest, req)

	ctx = llm.WithRepairObserver(ctx, func(attempt int, validationErr error) {
		rc.Events.Publish(graph.StageUpdateEvent(fmt.Sprintf(
			"structured-repair pass %d: %v", attempt, validationErr)))
	})

	rc.Events.Publish(graph.StartedEvent("modification started"))
	out, err := w.sg.Run(ctx, rc, req)
	if err != nil {
		rc.Events.Publish(graph.ErrorEvent(err.Error()))
		return nil, err
	}
	resp, ok := out.(*Response)
	if !ok {
		return nil, fmt.Errorf("modification finished with %T, not a response", out)
	}
	if resp.Success {
		rc.Events.Publish(graph.CompletedEvent(resp.Message))
	} else {
		rc.Events.Publish(graph.ErrorEvent(resp.Message))
	}
	return resp, nil
}

func (w *Workflow) repairConfig() llm.RepairConfig {
	return llm.RepairConfig{Client: w.deps.Repair, Retries: w.deps.RepairRetries}
}

// fail records the terminal status and routes to finalize.
func fail(rc *graph.RunContext, status workflows.VerificationStatus, message string) (any, error) {
	rc.Logger.Warn("modification failed: %s", message)
	graph.Set(rc.Session, keyStatus, status)
	graph.Set(rc.Session, keyError, message)
	return outcome{failed: true}, nil
}

func (w *Workflow) setup(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(1, totalSteps, "setup"))
	req, err := graph.Require(rc.Session, keyRequest)
	if err != nil {
		return nil, err
	}

	repo, err := forge.ParseRepoURL(req.RepoURL)
	if err != nil {
		return fail(rc, workflows.NotVerified, fmt.Sprintf("unusable repository URL: %v", err))
	}
	graph.Set(rc.Session, keyRepo, repo)

	checkout := w.deps.SessionPath
	if checkout == "" {
		checkout = filepath.Join(w.deps.WorkspaceRoot, rag.SanitizeRepoName(repo.String())+"-work")
	}
	if _, err := w.deps.Git.Clone(ctx, req.RepoURL, checkout); err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	graph.Set(rc.Session, keyCheckout, checkout)

	defaultBranch, err := w.deps.Forge.DefaultBranch(ctx, repo)
	if err != nil {
		rc.Logger.Warn("default branch lookup: %v", err)
		defaultBranch, err = w.deps.Git.CurrentBranch(ctx, checkout)
		if err != nil {
			defaultBranch = "main"
		}
	}
	graph.Set(rc.Session, keyDefaultBranch, defaultBranch)

	branch := gitops.FeatureBranchName(w.deps.Now())
	if err := w.deps.Git.CreateBranch(ctx, checkout, branch, defaultBranch); err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}
	graph.Set(rc.Session, keyBranch, branch)
	rc.Events.Publish(graph.StageUpdateEvent("working branch " + branch))

	if req.EnableEmbeddings && w.deps.Indexer != nil {
		if _, err := w.deps.Indexer.IndexRepository(ctx, repo.String(), checkout, func(p rag.Progress) {
			rc.Events.Publish(graph.RAGIndexingEvent(p.FilesIndexed, p.TotalChunks, p.IsComplete))
		}); err != nil {
			rc.Logger.Warn("indexing: %v", err)
		} else {
			graph.Set(rc.Session, keyIndexed, true)
		}
	}
	return outcome{}, nil
}

func (w *Workflow) analyzeCode(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(2, totalSteps, "analyze-code"))
	req, err := graph.Require(rc.Session, keyRequest)
	if err != nil {
		return nil, err
	}
	checkout, err := graph.Require(rc.Session, keyCheckout)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	for _, tool := range tools.NewFileOps(checkout).Tools() {
		registry.MustRegister(tool)
	}
	invoker := tools.NewInvoker(registry, rc.Logger)
	loop := tools.NewToolLoop("plan-modification", w.deps.Main, invoker, registry.Definitions())

	answer, err := loop.Run(ctx, rc, []llm.Message{
		llm.NewSystemMessage(plannerPrompt),
		llm.NewUserMessage(w.planBrief(ctx, rc, req)),
	})
	if err != nil {
		return nil, fmt.Errorf("plan exploration: %w", err)
	}

	parsed, err := llm.CompleteStructured[ModificationPlan](ctx, w.deps.Main, llm.StructuredRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(planSchemaPrompt),
			llm.NewUserMessage(fmt.Sprintf("Request:\n%s\n\nFindings:\n%s", req.UserRequest, answer.Content)),
		},
		Schema: modificationPlanSchema,
		Repair: w.repairConfig(),
	}, rc.Logger)
	if err != nil {
		var parseErr *llm.ParseError
		if stderrors.As(err, &parseErr) {
			return fail(rc, workflows.NotVerified, fmt.Sprintf(
				"modification plan invalid after %d attempt(s): %v", parseErr.Attempts, parseErr.Cause))
		}
		return nil, fmt.Errorf("modification plan: %w", err)
	}

	graph.Set(rc.Session, keyPlan, parsed.Value)
	rc.Events.Publish(graph.StageUpdateEvent("modification planned"))
	return outcome{}, nil
}

func (w *Workflow) planBrief(ctx context.Context, rc *graph.RunContext, req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository checkout is available through the file tools.\nRequest: %s\n", req.UserRequest)

	if indexed, _ := graph.Get(rc.Session, keyIndexed); indexed && w.deps.Indexer != nil {
		repo, _ := graph.Get(rc.Session, keyRepo)
		results, err := w.deps.Indexer.SearchText(ctx, repo.String(), req.UserRequest, 5, w.deps.MinSimilarity)
		if err != nil {
			rc.Logger.Warn("retrieval: %v", err)
		} else if len(results) > 0 {
			b.WriteString("\nRelevant fragments found by retrieval:\n")
			for _, r := range results {
				fmt.Fprintf(&b, "--- %s (lines %d-%d)\n%s\n",
					r.Chunk.Metadata.FilePath, r.Chunk.StartLine, r.Chunk.EndLine, r.Chunk.Content)
			}
		}
	}
	return b.String()
}

func (w *Workflow) modifyCode(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(3, totalSteps, "modify-code"))
	plan, err := graph.Require(rc.Session, keyPlan)
	if err != nil {
		return nil, err
	}
	checkout, err := graph.Require(rc.Session, keyCheckout)
	if err != nil {
		return nil, err
	}

	iteration, _ := graph.Get(rc.Session, keyIterations)
	iteration++
	graph.Set(rc.Session, keyIterations, iteration)

	registry := tools.NewRegistry()
	for _, tool := range tools.NewFileOps(checkout).Tools() {
		registry.MustRegister(tool)
	}
	for _, tool := range tools.NewPatchOps(checkout, func(path string) {
		recordModifiedFile(rc.Session, path)
	}).Tools() {
		registry.MustRegister(tool)
	}
	invoker := tools.NewInvoker(registry, rc.Logger)
	loop := tools.NewToolLoop("apply-modification", w.deps.Main, invoker, registry.Definitions())

	var b strings.Builder
	fmt.Fprintf(&b, "Plan:\n%s\n", plan.ModificationPlan)
	if len(plan.FilesToModify) > 0 {
		fmt.Fprintf(&b, "Files to modify: %s\n", strings.Join(plan.FilesToModify, ", "))
	}
	if len(plan.Dependencies) > 0 {
		fmt.Fprintf(&b, "Dependencies to add: %s\n", strings.Join(plan.Dependencies, ", "))
	}
	if verify, ok := graph.Get(rc.Session, keyVerify); ok && verify != nil && !verify.Success {
		fmt.Fprintf(&b, "\nThe previous attempt failed verification:\n%s\n%s\n",
			verify.ErrorMessage, strings.Join(verify.Logs, "\n"))
	}

	if _, err := loop.Run(ctx, rc, []llm.Message{
		llm.NewSystemMessage(modifierPrompt),
		llm.NewUserMessage(b.String()),
	}); err != nil {
		return nil, fmt.Errorf("apply modification: %w", err)
	}

	files, _ := graph.Get(rc.Session, keyFiles)
	rc.Events.Publish(graph.StageUpdateEvent(fmt.Sprintf("modification applied, %d file(s) touched", len(files))))
	return outcome{}, nil
}

// recordModifiedFile appends path to the run's modified-file set, once.
func recordModifiedFile(s *graph.Session, path string) {
	files, _ := graph.Get(s, keyFiles)
	for _, existing := range files {
		if existing == path {
			return
		}
	}
	graph.Set(s, keyFiles, append(files, path))
}

func (w *Workflow) verifyContainer(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(4, totalSteps, "verify-container"))
	req, err := graph.Require(rc.Session, keyRequest)
	if err != nil {
		return nil, err
	}
	plan, err := graph.Require(rc.Session, keyPlan)
	if err != nil {
		return nil, err
	}

	env := req.ContainerEnv
	if env == nil {
		env = plan.ContainerEnv
	}
	if env == nil || w.deps.Docker == nil {
		rc.Events.Publish(graph.StageUpdateEvent("no container recipe; verification skipped"))
		return outcome{}, nil
	}

	avail := w.deps.Docker.Available(ctx)
	if !avail.Available {
		rc.Events.Publish(graph.StageUpdateEvent("verification skipped: " + avail.Message))
		return outcome{}, nil
	}

	checkout, err := graph.Require(rc.Session, keyCheckout)
	if err != nil {
		return nil, err
	}

	verify, err := w.runVerification(ctx, rc, checkout, env)
	if err != nil {
		return nil, err
	}
	graph.Set(rc.Session, keyVerify, verify)

	if verify.Success {
		rc.Events.Publish(graph.StageUpdateEvent("verification passed"))
		return outcome{}, nil
	}

	iteration, _ := graph.Get(rc.Session, keyIterations)
	if iteration < w.deps.MaxIterations {
		rc.Events.Publish(graph.StageUpdateEvent("verification failed; retrying the modification"))
		return outcome{retry: true}, nil
	}
	return fail(rc, workflows.VerificationFailed, verify.ErrorMessage)
}

// runVerification hands the checkout to a tool-driven verification turn: the
// model probes the daemon, generates a Dockerfile, builds, runs the
// verification command and cleans up, in that order. A structured second turn
// then reads the captured tool log into a verdict.
func (w *Workflow) runVerification(ctx context.Context, rc *graph.RunContext, checkout string, env *workflows.ContainerEnv) (*workflows.VerificationResult, error) {
	var transcript []string
	var stepFailed bool

	registry := tools.NewRegistry()
	for _, tool := range tools.NewDockerTools(w.deps.Docker, checkout).Tools() {
		registry.MustRegister(recordToolLog(tool, &transcript, &stepFailed))
	}
	invoker := tools.NewInvoker(registry, rc.Logger)
	loop := tools.NewToolLoop("verify-container", w.deps.Main, invoker, registry.Definitions())

	command := env.RunCommand
	if command == "" {
		command = env.BuildCommand
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Base image: %s\n", env.BaseImage)
	if env.BuildCommand != "" {
		fmt.Fprintf(&b, "Build command: %s\n", env.BuildCommand)
	}
	fmt.Fprintf(&b, "Verification command: %s\n", command)
	if env.Port > 0 {
		fmt.Fprintf(&b, "Port: %d\n", env.Port)
	}
	if env.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", env.Notes)
	}

	if _, err := loop.Run(ctx, rc, []llm.Message{
		llm.NewSystemMessage(verifierPrompt),
		llm.NewUserMessage(b.String()),
	}); err != nil {
		return nil, fmt.Errorf("verification turn: %w", err)
	}

	parsed, err := llm.CompleteStructured[workflows.VerificationResult](ctx, w.deps.Main, llm.StructuredRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(verdictPrompt),
			llm.NewUserMessage(fmt.Sprintf("Verification command: %s\n\nTool log:\n%s",
				command, strings.Join(transcript, "\n"))),
		},
		Schema: verificationResultSchema,
		Repair: w.repairConfig(),
	}, rc.Logger)
	if err != nil {
		// The tool log still decides when the verdict call breaks.
		rc.Logger.Warn("verification verdict: %v", err)
		result := &workflows.VerificationResult{
			Success:         !stepFailed,
			CommandExecuted: command,
			Logs:            transcript,
		}
		if stepFailed {
			result.ExitCode = 1
			result.ErrorMessage = "a verification step failed; see logs"
		}
		return result, nil
	}
	return &parsed.Value, nil
}

// recordToolLog wraps a tool so its results land in the transcript the
// verdict turn reads.
func recordToolLog(tool tools.Tool, transcript *[]string, failed *bool) tools.Tool {
	name := tool.Definition.Name
	handler := tool.Handler
	tool.Handler = func(ctx context.Context, args map[string]any) (tools.Result, error) {
		result, err := handler(ctx, args)
		if err != nil {
			return result, err
		}
		*transcript = append(*transcript, fmt.Sprintf("[%s] %s", name, result.Content))
		if result.IsError {
			*failed = true
		}
		return result, nil
	}
	return tool
}

func (w *Workflow) gitOperations(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(5, totalSteps, "git-operations"))
	checkout, err := graph.Require(rc.Session, keyCheckout)
	if err != nil {
		return nil, err
	}
	branch, err := graph.Require(rc.Session, keyBranch)
	if err != nil {
		return nil, err
	}
	files, _ := graph.Get(rc.Session, keyFiles)

	message := w.commitMessage(ctx, rc)
	sha, err := w.deps.Git.Commit(ctx, checkout, message, files)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	status, err := w.deps.Git.Push(ctx, checkout, branch, false)
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	if status.Rejected {
		// One retry on a fresh branch from the same HEAD.
		retryBranch := gitops.RetryBranchName(branch, w.deps.Now())
		rc.Events.Publish(graph.StageUpdateEvent("push rejected; retrying on " + retryBranch))
		if err := w.deps.Git.CreateBranch(ctx, checkout, retryBranch, ""); err != nil {
			return nil, fmt.Errorf("create retry branch: %w", err)
		}
		status, err = w.deps.Git.Push(ctx, checkout, retryBranch, false)
		if err != nil {
			return nil, fmt.Errorf("push retry: %w", err)
		}
		branch = retryBranch
		graph.Set(rc.Session, keyBranch, branch)
	}

	result := workflows.GitResult{
		CommitSHA:    sha,
		Pushed:       status.Pushed,
		BranchName:   branch,
		PushRejected: status.Rejected,
		Message:      message,
	}
	graph.Set(rc.Session, keyGit, result)

	if !status.Pushed {
		return fail(rc, workflows.PushFailed, "push rejected twice; change kept on "+branch)
	}
	rc.Events.Publish(graph.StageUpdateEvent("pushed " + branch))
	return outcome{}, nil
}

// commitMessage asks the model for a conventional-commit subject; any failure
// falls back to a fixed message.
func (w *Workflow) commitMessage(ctx context.Context, rc *graph.RunContext) string {
	plan, _ := graph.Get(rc.Session, keyPlan)
	files, _ := graph.Get(rc.Session, keyFiles)
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	resp, err := w.deps.Main.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(commitPrompt),
			llm.NewUserMessage(fmt.Sprintf("Plan: %s\nFiles: %s", plan.ModificationPlan, strings.Join(sorted, ", "))),
		},
	})
	if err != nil {
		rc.Logger.Warn("commit message: %v", err)
		return fallbackCommitMessage
	}
	message := strings.TrimSpace(strings.Split(resp.Content, "\n")[0])
	if message == "" {
		return fallbackCommitMessage
	}
	return message
}

func (w *Workflow) finalize(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(6, totalSteps, "finalize"))

	files, _ := graph.Get(rc.Session, keyFiles)
	if files == nil {
		files = []string{}
	}
	iterations, _ := graph.Get(rc.Session, keyIterations)
	branch, _ := graph.Get(rc.Session, keyBranch)
	gitResult, _ := graph.Get(rc.Session, keyGit)

	resp := &Response{
		FilesModified:  files,
		IterationsUsed: iterations,
		BranchName:     branch,
		CommitSHA:      gitResult.CommitSHA,
	}

	if status, ok := graph.Get(rc.Session, keyStatus); ok {
		reason, _ := graph.Get(rc.Session, keyError)
		resp.Success = false
		resp.VerificationStatus = status
		resp.ErrorMessage = reason
		resp.Message = "modification failed: " + reason
		if status == workflows.PushFailed {
			w.attachDiff(ctx, rc, resp)
		}
		return resp, nil
	}

	if verify, ok := graph.Get(rc.Session, keyVerify); ok && verify != nil && verify.Success {
		resp.VerificationStatus = workflows.VerificationSuccess
	} else {
		resp.VerificationStatus = workflows.NotVerified
	}

	resp.Success = true
	resp.Message = "modification completed"

	repo, _ := graph.Get(rc.Session, keyRepo)
	defaultBranch, _ := graph.Get(rc.Session, keyDefaultBranch)
	req, _ := graph.Get(rc.Session, keyRequest)

	pr, err := w.deps.Forge.CreatePullRequest(ctx, repo,
		gitResult.Message,
		fmt.Sprintf("Automated change for: %s", req.UserRequest),
		branch, defaultBranch)
	if err != nil {
		rc.Logger.Warn("pull request: %v", err)
		resp.Message = "modification completed; pull request creation failed, diff attached"
		w.attachDiff(ctx, rc, resp)
		return resp, nil
	}
	resp.PRURL = pr.URL
	return resp, nil
}

// attachDiff fills resp.Diff with the branch's delta against the default
// branch; best effort.
func (w *Workflow) attachDiff(ctx context.Context, rc *graph.RunContext, resp *Response) {
	checkout, _ := graph.Get(rc.Session, keyCheckout)
	branch, _ := graph.Get(rc.Session, keyBranch)
	defaultBranch, _ := graph.Get(rc.Session, keyDefaultBranch)
	if checkout == "" || branch == "" || defaultBranch == "" {
		return
	}
	stat, err := w.deps.Git.Diff(ctx, checkout, defaultBranch, branch)
	if err != nil {
		rc.Logger.Warn("diff: %v", err)
		return
	}
	resp.Diff = stat.Diff
}

const plannerPrompt = `You plan a code change in a repository. Use the file tools to understand the
code that the request touches; keep it to at most 15 tool calls. When you
know what to change, answer in plain text with the plan and the files
involved.`

const planSchemaPrompt = `You turn a modification plan into a JSON object: "modificationPlan" is the
plan text, "filesToModify" lists the files, "dependencies" lists packages to
add. Fill "containerEnv" when the findings identify how to build and run the
project. Output only the JSON object.`

const modifierPrompt = `You apply a planned code change. Read files before patching them; use
apply-patch or apply-patches with 1-indexed inclusive line ranges, and
create-file for new files. When everything in the plan is applied, answer in
plain text with a short summary of what changed.`

const verifierPrompt = `You verify a code change inside a container. Call the tools strictly in
this order: check-docker-availability, generate-dockerfile,
build-docker-image, run-docker-container with the verification command, and
cleanup-docker with the built image. Always finish with cleanup-docker, even
after a failed step. Then answer in plain text with what happened.`

const verdictPrompt = `You read a container verification tool log and report a JSON verdict:
"success", "commandExecuted", "exitCode", "logs", and "errorMessage" quoting
the decisive failure line when there is one. Output only the JSON object.`

const commitPrompt = `You write a one-line conventional-commit subject (type: description) for a
code change. Output only that line.`
