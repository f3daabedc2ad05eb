package analyze

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

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

	// maxDocBytes bounds the external requirements document.
	maxDocBytes = 1 << 20

	defaultRepairRetries = 2
)

// Deps wires the workflow's collaborators. Forge and the main client are
// required; Docker and Indexer are optional and their steps degrade to
// skips when absent.
type Deps struct {
	Main          llm.StreamingClient
	Repair        llm.Client // nil falls back to Main
	RepairRetries int        // 0 means defaultRepairRetries
	Forge         *forge.Client
	Git           *gitops.Git
	Docker        *dockerops.Docker
	Indexer       *rag.Indexer
	MinSimilarity float64
	HTTPClient    *http.Client
	WorkspaceRoot string
	Logger        logging.Logger
}

// Workflow is the analysis pipeline. One Workflow serves many runs; all
// per-run state lives in the run's session.
type Workflow struct {
	deps Deps
	sg   *graph.Subgraph
}

// Session keys private to the analysis run.
var (
	keyRequest      = graph.NewKey[Request]("analyze.request")
	keyInitial      = graph.NewKey[InitialAnalysis]("analyze.initial")
	keyRepo         = graph.NewKey[forge.Repo]("analyze.repo")
	keyDocURL       = graph.NewKey[string]("analyze.doc-url")
	keyRequirements = graph.NewKey[*workflows.Requirements]("analyze.requirements")
	keyReport       = graph.NewKey[RepositoryAnalysis]("analyze.report")
	keyContainer    = graph.NewKey[*ContainerBuildInfo]("analyze.container")
	keyRAGNote      = graph.NewKey[string]("analyze.rag-note")
	keyFailure      = graph.NewKey[string]("analyze.failure")
)

// outcome routes a step to the next one or short-circuits to finalize.
type outcome struct {
	failed bool
}

func failedOutcome(output any) bool {
	o, ok := output.(outcome)
	return ok && o.failed
}

// New builds the workflow graph around the given dependencies.
func New(deps Deps) *Workflow {
	if deps.Repair == nil {
		deps.Repair = deps.Main
	}
	if deps.RepairRetries == 0 {
		deps.RepairRetries = defaultRepairRetries
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	deps.Logger = logging.OrNop(deps.Logger)

	w := &Workflow{deps: deps}
	w.sg = graph.NewBuilder("analyze").
		NodeWithDescription("parse-request", "Parse the free-text request", w.parseRequest).
		NodeWithDescription("load-requirements", "Load the external requirements document", w.loadRequirements).
		NodeWithDescription("index-repository", "Index the repository for retrieval", w.indexRepository).
		NodeWithDescription("analyze-repository", "Explore the repository and synthesize the report", w.analyzeRepository).
		NodeWithDescription("build-container", "Validate buildability in a container", w.buildContainer).
		NodeWithDescription("finalize", "Assemble the response", w.finalize).
		Edge("parse-request", "finalize", graph.OnCondition(failedOutcome)).
		Edge("parse-request", "load-requirements", graph.Always).
		Edge("load-requirements", "index-repository", graph.Always).
		Edge("index-repository", "analyze-repository", graph.Always).
		Edge("analyze-repository", "finalize", graph.OnCondition(failedOutcome)).
		Edge("analyze-repository", "build-container", graph.Always).
		Edge("build-container", "finalize", graph.Always).
		Start("parse-request").
		Finish("finalize").
		MustBuild()
	return w
}

// Run executes one analysis. Events stream to bus throughout; the returned
// Response is the terminal value whether the analysis succeeded or failed
// for a reason the caller should read (bad request, unparseable output).
// An error return means the run itself broke.
func (w *Workflow) Run(ctx context.Context, req Request, bus *graph.Bus) (*Response, error) {
	rc := graph.NewRunContext(bus, w.deps.Logger)
	graph.Set(rc.Session, keyRequest, req)

	ctx = llm.WithRepairObserver(ctx, func(attempt int, validationErr error) {
		rc.Events.Publish(graph.StageUpdateEvent(fmt.Sprintf(
			"structured-repair pass %d: %v", attempt, validationErr)))
	})

	rc.Events.Publish(graph.StartedEvent("analysis started"))
	out, err := w.sg.Run(ctx, rc, req)
	if err != nil {
		rc.Events.Publish(graph.ErrorEvent(err.Error()))
		return nil, err
	}
	resp, ok := out.(*Response)
	if !ok {
		return nil, fmt.Errorf("analysis finished with %T, not a response", out)
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

// fail records the reason and routes to finalize.
func fail(rc *graph.RunContext, reason string) (any, error) {
	rc.Logger.Warn("analysis failed: %s", reason)
	graph.Set(rc.Session, keyFailure, reason)
	return outcome{failed: true}, nil
}

func (w *Workflow) parseRequest(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(1, totalSteps, "parse-request"))
	req, err := graph.Require(rc.Session, keyRequest)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.CompleteStructured[InitialAnalysis](ctx, w.deps.Main, llm.StructuredRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(parseRequestPrompt),
			llm.NewUserMessage(req.UserInput),
		},
		Schema: initialAnalysisSchema,
		Repair: w.repairConfig(),
	}, rc.Logger)
	if err != nil {
		var parseErr *llm.ParseError
		if stderrors.As(err, &parseErr) {
			return fail(rc, fmt.Sprintf("could not understand the request after %d attempt(s): %v",
				parseErr.Attempts, parseErr.Cause))
		}
		return nil, fmt.Errorf("parse request: %w", err)
	}

	initial := parsed.Value
	repo, err := forge.ParseRepoURL(initial.RepoURL)
	if err != nil {
		return fail(rc, fmt.Sprintf("request names no usable repository: %v", err))
	}

	graph.Set(rc.Session, keyInitial, initial)
	graph.Set(rc.Session, keyRepo, repo)
	if initial.Requirements != "" {
		graph.Set(rc.Session, keyRequirements, &workflows.Requirements{Summary: initial.Requirements})
	}

	docURL := initial.ExternalDocsURL
	if docURL == "" && req.AttachExternalDoc {
		docURL = req.ExternalDocURL
	}
	graph.Set(rc.Session, keyDocURL, docURL)

	rc.Events.Publish(graph.StageUpdateEvent("request parsed: " + repo.String()))
	return outcome{}, nil
}

func (w *Workflow) loadRequirements(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(2, totalSteps, "load-requirements"))

	docURL, _ := graph.Get(rc.Session, keyDocURL)
	if docURL == "" {
		rc.Events.Publish(graph.StageUpdateEvent("no external document to load"))
		return outcome{}, nil
	}
	if _, has := graph.Get(rc.Session, keyRequirements); has {
		rc.Events.Publish(graph.StageUpdateEvent("requirements already present in the request"))
		return outcome{}, nil
	}

	// A broken document degrades the analysis, it does not abort it.
	registry := tools.NewRegistry()
	for _, tool := range tools.NewDocFetch(w.deps.HTTPClient, maxDocBytes).Tools() {
		registry.MustRegister(tool)
	}
	invoker := tools.NewInvoker(registry, rc.Logger)
	loop := tools.NewToolLoop("load-requirements", w.deps.Main, invoker, registry.Definitions())

	answer, err := loop.Run(ctx, rc, []llm.Message{
		llm.NewSystemMessage(requirementsLoopPrompt),
		llm.NewUserMessage("Requirements document: " + docURL),
	})
	if err != nil {
		rc.Logger.Warn("external document %s: %v", docURL, err)
		rc.Events.Publish(graph.StageUpdateEvent("external document unavailable: " + err.Error()))
		return outcome{}, nil
	}

	parsed, err := llm.CompleteStructured[workflows.Requirements](ctx, w.deps.Main, llm.StructuredRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(requirementsPrompt),
			llm.NewUserMessage(answer.Content),
		},
		Schema: requirementsSchema,
		Repair: w.repairConfig(),
	}, rc.Logger)
	if err != nil {
		rc.Logger.Warn("requirements extraction: %v", err)
		rc.Events.Publish(graph.StageUpdateEvent("requirements extraction failed"))
		return outcome{}, nil
	}

	graph.Set(rc.Session, keyRequirements, &parsed.Value)
	rc.Events.Publish(graph.StageUpdateEvent("requirements loaded"))
	return outcome{}, nil
}

func (w *Workflow) indexRepository(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(3, totalSteps, "index-repository"))

	req, _ := graph.Get(rc.Session, keyRequest)
	if !req.EnableEmbeddings || w.deps.Indexer == nil || w.deps.Git == nil {
		rc.Events.Publish(graph.StageUpdateEvent("embeddings disabled; indexing skipped"))
		return outcome{}, nil
	}

	initial, err := graph.Require(rc.Session, keyInitial)
	if err != nil {
		return nil, err
	}
	repo, err := graph.Require(rc.Session, keyRepo)
	if err != nil {
		return nil, err
	}

	cloneDir := filepath.Join(w.deps.WorkspaceRoot, rag.SanitizeRepoName(repo.String())+"-rag")
	defer w.cleanupDir(cloneDir, rc)

	if _, err := w.deps.Git.Clone(ctx, initial.RepoURL, cloneDir); err != nil {
		rc.Logger.Warn("clone for indexing: %v", err)
		rc.Events.Publish(graph.StageUpdateEvent("indexing skipped: clone failed"))
		return outcome{}, nil
	}

	index, err := w.deps.Indexer.IndexRepository(ctx, repo.String(), cloneDir, func(p rag.Progress) {
		rc.Events.Publish(graph.RAGIndexingEvent(p.FilesIndexed, p.TotalChunks, p.IsComplete))
	})
	if err != nil {
		rc.Logger.Warn("indexing: %v", err)
		rc.Events.Publish(graph.StageUpdateEvent("indexing failed; continuing without retrieval"))
		return outcome{}, nil
	}

	graph.Set(rc.Session, keyRAGNote, fmt.Sprintf("indexed %d chunks", len(index.Entries)))
	return outcome{}, nil
}

func (w *Workflow) cleanupDir(dir string, rc *graph.RunContext) {
	var err error
	if w.deps.Docker != nil {
		err = w.deps.Docker.CleanupDirectory(dir)
	} else {
		err = os.RemoveAll(dir)
	}
	if err != nil {
		rc.Logger.Warn("cleanup %s: %v", dir, err)
	}
}

func (w *Workflow) analyzeRepository(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(4, totalSteps, "analyze-repository"))

	initial, err := graph.Require(rc.Session, keyInitial)
	if err != nil {
		return nil, err
	}
	repo, err := graph.Require(rc.Session, keyRepo)
	if err != nil {
		return nil, err
	}

	ref, err := w.deps.Forge.DefaultBranch(ctx, repo)
	if err != nil {
		rc.Logger.Warn("default branch lookup: %v", err)
		ref = "main"
	}

	registry := tools.NewRegistry()
	for _, tool := range tools.NewForgeTools(w.deps.Forge, repo, ref).Tools() {
		registry.MustRegister(tool)
	}
	invoker := tools.NewInvoker(registry, rc.Logger)
	loop := tools.NewToolLoop("explore-repository", w.deps.Main, invoker, registry.Definitions())

	messages := []llm.Message{
		llm.NewSystemMessage(analystPrompt),
		llm.NewUserMessage(w.analysisBrief(ctx, rc, repo, initial)),
	}
	answer, err := loop.Run(ctx, rc, messages)
	if err != nil {
		return nil, fmt.Errorf("repository exploration: %w", err)
	}

	parsed, err := llm.CompleteStructured[RepositoryAnalysis](ctx, w.deps.Main, llm.StructuredRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage(reportPrompt),
			llm.NewUserMessage(fmt.Sprintf("User request:\n%s\n\nExploration findings:\n%s",
				initial.UserRequest, answer.Content)),
		},
		Schema: repositoryAnalysisSchema,
		Repair: w.repairConfig(),
	}, rc.Logger)
	if err != nil {
		var parseErr *llm.ParseError
		if stderrors.As(err, &parseErr) {
			return fail(rc, fmt.Sprintf("analysis report invalid after %d attempt(s): %v",
				parseErr.Attempts, parseErr.Cause))
		}
		return nil, fmt.Errorf("analysis report: %w", err)
	}

	graph.Set(rc.Session, keyReport, parsed.Value)
	rc.Events.Publish(graph.StageUpdateEvent("repository analyzed"))
	return outcome{}, nil
}

// analysisBrief assembles the user turn for the exploration loop: the
// request, any loaded requirements, and retrieval hits when an index exists.
func (w *Workflow) analysisBrief(ctx context.Context, rc *graph.RunContext, repo forge.Repo, initial InitialAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s (%s)\n", repo.String(), initial.RepoURL)
	fmt.Fprintf(&b, "Request: %s\n", initial.UserRequest)

	if reqs, ok := graph.Get(rc.Session, keyRequirements); ok && reqs != nil {
		fmt.Fprintf(&b, "\nRequirements: %s\n", reqs.Summary)
		for _, item := range reqs.Items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	if _, ok := graph.Get(rc.Session, keyRAGNote); ok && w.deps.Indexer != nil {
		results, err := w.deps.Indexer.SearchText(ctx, repo.String(), initial.UserRequest, 5, w.deps.MinSimilarity)
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

func (w *Workflow) buildContainer(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(5, totalSteps, "build-container"))

	req, _ := graph.Get(rc.Session, keyRequest)
	report, err := graph.Require(rc.Session, keyReport)
	if err != nil {
		return nil, err
	}
	if req.ForceSkipContainer || report.ContainerEnv == nil || w.deps.Docker == nil || w.deps.Git == nil {
		rc.Events.Publish(graph.StageUpdateEvent("container build skipped"))
		return outcome{}, nil
	}

	avail := w.deps.Docker.Available(ctx)
	if !avail.Available {
		rc.Events.Publish(graph.StageUpdateEvent("container build skipped: " + avail.Message))
		return outcome{}, nil
	}

	initial, err := graph.Require(rc.Session, keyInitial)
	if err != nil {
		return nil, err
	}
	repo, err := graph.Require(rc.Session, keyRepo)
	if err != nil {
		return nil, err
	}

	cloneDir := filepath.Join(w.deps.WorkspaceRoot, rag.SanitizeRepoName(repo.String())+"-build")
	defer w.cleanupDir(cloneDir, rc)

	if _, err := w.deps.Git.Clone(ctx, initial.RepoURL, cloneDir); err != nil {
		rc.Logger.Warn("clone for container build: %v", err)
		rc.Events.Publish(graph.StageUpdateEvent("container build skipped: clone failed"))
		return outcome{}, nil
	}

	env := report.ContainerEnv
	if _, err := w.deps.Docker.GenerateDockerfile(cloneDir, env.BaseImage, env.BuildCommand, env.RunCommand, env.Port); err != nil {
		rc.Events.Publish(graph.StageUpdateEvent("container build skipped: " + err.Error()))
		return outcome{}, nil
	}

	build, err := w.deps.Docker.BuildImage(ctx, cloneDir, "")
	info := &ContainerBuildInfo{
		Success:         build.Success,
		ImageName:       build.ImageName,
		DurationSeconds: build.DurationSeconds,
		Logs:            build.Logs,
	}
	if err != nil {
		info.Success = false
		info.Logs = append(info.Logs, err.Error())
	}
	if info.Success {
		if size, ok := w.deps.Docker.ImageSize(ctx, build.ImageName); ok {
			info.ImageSize = size
		}
	}
	if build.ImageName != "" {
		w.deps.Docker.RemoveImage(ctx, build.ImageName)
	}

	graph.Set(rc.Session, keyContainer, info)
	rc.Events.Publish(graph.StageUpdateEvent(fmt.Sprintf("container build finished: success=%v", info.Success)))
	return outcome{}, nil
}

func (w *Workflow) finalize(ctx context.Context, rc *graph.RunContext, _ any) (any, error) {
	rc.Events.Publish(graph.ProgressEvent(6, totalSteps, "finalize"))

	resp := &Response{
		ToolCalls: []string{},
		Model:     w.deps.Main.Model(),
	}
	if calls, ok := graph.Get(rc.Session, graph.ToolCallLogKey); ok {
		resp.ToolCalls = calls
	}
	if usage, ok := graph.Get(rc.Session, tools.UsageKey); ok {
		resp.Usage = &usage
	}

	if reason, ok := graph.Get(rc.Session, keyFailure); ok {
		resp.Success = false
		resp.Message = reason
		return resp, nil
	}

	report, err := graph.Require(rc.Session, keyReport)
	if err != nil {
		return nil, err
	}
	resp.Success = true
	resp.Message = "analysis completed"
	resp.TLDR = report.TLDR
	resp.Analysis = report.Analysis
	resp.UserRequestAnalysis = report.UserRequestAnalysis
	resp.RepositoryReview = report.RepositoryReview
	if reqs, ok := graph.Get(rc.Session, keyRequirements); ok {
		resp.Requirements = reqs
	}
	if info, ok := graph.Get(rc.Session, keyContainer); ok {
		resp.ContainerInfo = info
	}
	if note, ok := graph.Get(rc.Session, keyRAGNote); ok {
		resp.RAGNote = note
	}
	return resp, nil
}

const parseRequestPrompt = `You turn a free-text request about a code repository into a JSON object.
Extract the repository URL and the user's actual request. If the text names
specific requirements or links an external requirements document, extract
those too. Output only the JSON object.`

const requirementsLoopPrompt = `You load a requirements document. Fetch it with the fetch-document tool,
then answer in plain text with the requirements you found. If the document
cannot be fetched, say so.`

const requirementsPrompt = `You summarize requirements findings into a JSON object with a short
"summary" and an "items" list of discrete requirements. Output only the JSON
object.`

const analystPrompt = `You analyze a code repository to answer a user's request. Use the available
tools to look at the file tree and read the files that matter. Keep it to at
most 15 tool calls; start from the tree and the build files, then read only
what the request needs. When you have enough, answer in plain text with your
findings.`

const reportPrompt = `You turn exploration findings into a JSON analysis report. "tldr" is one or
two sentences; "analysis" is the full picture. Fill "userRequestAnalysis" and
"repositoryReview" when the findings support them. If the findings identify
how to build and run the project, fill "containerEnv" (baseImage is
required). Output only the JSON object.`
