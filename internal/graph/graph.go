package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/logging"
)

// Engine invariant violations. These indicate programmer error and fail the
// run.
var (
	ErrNoApplicableEdge  = errors.New("no applicable edge")
	ErrMissingSessionKey = errors.New("missing required session key")
	ErrMaxSteps          = errors.New("step ceiling exceeded")
)

// DefaultMaxSteps bounds node executions per subgraph run. Tool-call loops
// are the only cycles, so a run that hits this is stuck.
const DefaultMaxSteps = 32

// AssistantMessage is textual LLM output flowing along edges.
type AssistantMessage struct {
	Content string
}

// ToolCallRequest is an LLM turn's request to execute tools.
type ToolCallRequest struct {
	Calls []llm.ToolCall
	// Message is the assistant turn carrying the calls, replayed into the
	// conversation before tool results.
	Message llm.Message
}

// ToolResult is a tool executor's output: one result message per call.
type ToolResult struct {
	Messages []llm.Message
}

// RunContext carries a run's private state into node bodies.
type RunContext struct {
	Session *Session
	Events  *Bus
	Logger  logging.Logger
}

// NewRunContext creates the per-run state bundle.
func NewRunContext(bus *Bus, logger logging.Logger) *RunContext {
	if bus == nil {
		bus = NewBus(0)
	}
	return &RunContext{Session: NewSession(), Events: bus, Logger: logging.OrNop(logger)}
}

// NodeFunc is a node body: input in, output out.
type NodeFunc func(ctx context.Context, rc *RunContext, input any) (any, error)

// Predicate gates an edge on the upstream node's output.
type Predicate func(output any) bool

// Always matches any output.
func Always(any) bool { return true }

// OnToolCall matches a tool-call request.
func OnToolCall(output any) bool {
	_, ok := output.(ToolCallRequest)
	return ok
}

// OnAssistantMessage matches textual output.
func OnAssistantMessage(output any) bool {
	_, ok := output.(AssistantMessage)
	return ok
}

// OnCondition wraps a caller-provided check.
func OnCondition(fn func(output any) bool) Predicate { return fn }

type node struct {
	name        string
	description string
	fn          NodeFunc
}

type edge struct {
	from, to  string
	predicate Predicate
}

// Subgraph is an immutable node/edge set with distinguished start and finish
// nodes. Build one with NewBuilder.
type Subgraph struct {
	name     string
	tools    []llm.ToolDefinition
	nodes    map[string]*node
	edges    map[string][]edge // keyed by from, insertion-ordered
	start    string
	finish   string
	maxSteps int
}

func (s *Subgraph) Name() string                { return s.name }
func (s *Subgraph) Tools() []llm.ToolDefinition { return s.tools }

// Builder assembles a subgraph. Registration errors are accumulated and
// returned from Build so call sites stay linear.
type Builder struct {
	sg   *Subgraph
	errs []error
}

// NewBuilder starts a subgraph with the given name and tool catalog.
func NewBuilder(name string, tools ...llm.ToolDefinition) *Builder {
	return &Builder{sg: &Subgraph{
		name:     name,
		tools:    tools,
		nodes:    make(map[string]*node),
		edges:    make(map[string][]edge),
		maxSteps: DefaultMaxSteps,
	}}
}

// Node registers a node. Registering the same name twice is a build error.
func (b *Builder) Node(name string, fn NodeFunc) *Builder {
	return b.NodeWithDescription(name, "", fn)
}

// NodeWithDescription registers a node with a human description carried on
// its NodeStarted event.
func (b *Builder) NodeWithDescription(name, description string, fn NodeFunc) *Builder {
	if _, exists := b.sg.nodes[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %q registered twice", name))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has no body", name))
		return b
	}
	b.sg.nodes[name] = &node{name: name, description: description, fn: fn}
	return b
}

// Edge registers a directed edge with a predicate. Insertion order is the
// evaluation order at the branching node.
func (b *Builder) Edge(from, to string, predicate Predicate) *Builder {
	if predicate == nil {
		predicate = Always
	}
	b.sg.edges[from] = append(b.sg.edges[from], edge{from: from, to: to, predicate: predicate})
	return b
}

// Start marks the entry node.
func (b *Builder) Start(name string) *Builder {
	b.sg.start = name
	return b
}

// Finish marks the terminal node.
func (b *Builder) Finish(name string) *Builder {
	b.sg.finish = name
	return b
}

// MaxSteps overrides the per-run node execution ceiling.
func (b *Builder) MaxSteps(n int) *Builder {
	if n > 0 {
		b.sg.maxSteps = n
	}
	return b
}

// Build validates the subgraph: start and finish exist, every edge endpoint
// is registered, every non-start node is reachable by some edge, and every
// non-finish node has a way out.
func (b *Builder) Build() (*Subgraph, error) {
	sg := b.sg
	errs := b.errs

	if sg.start == "" {
		errs = append(errs, fmt.Errorf("subgraph %q: no start node", sg.name))
	} else if _, ok := sg.nodes[sg.start]; !ok {
		errs = append(errs, fmt.Errorf("subgraph %q: start node %q not registered", sg.name, sg.start))
	}
	if sg.finish == "" {
		errs = append(errs, fmt.Errorf("subgraph %q: no finish node", sg.name))
	} else if _, ok := sg.nodes[sg.finish]; !ok {
		errs = append(errs, fmt.Errorf("subgraph %q: finish node %q not registered", sg.name, sg.finish))
	}

	incoming := map[string]bool{}
	for from, edges := range sg.edges {
		if _, ok := sg.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("subgraph %q: edge from unknown node %q", sg.name, from))
		}
		for _, e := range edges {
			if _, ok := sg.nodes[e.to]; !ok {
				errs = append(errs, fmt.Errorf("subgraph %q: edge to unknown node %q", sg.name, e.to))
			}
			incoming[e.to] = true
		}
	}
	for name := range sg.nodes {
		if name != sg.start && !incoming[name] {
			errs = append(errs, fmt.Errorf("subgraph %q: node %q has no incoming edge", sg.name, name))
		}
		if name != sg.finish && len(sg.edges[name]) == 0 {
			errs = append(errs, fmt.Errorf("subgraph %q: node %q has no outgoing edge", sg.name, name))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return sg, nil
}

// MustBuild is Build for statically-known graphs.
func (b *Builder) MustBuild() *Subgraph {
	sg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return sg
}

// Run executes the subgraph from start to finish. The cancellation signal is
// checked before every node; nodes performing I/O must observe it themselves.
func (s *Subgraph) Run(ctx context.Context, rc *RunContext, input any) (any, error) {
	current := s.nodes[s.start]
	value := input

	for step := 0; ; step++ {
		if step >= s.maxSteps {
			return nil, fmt.Errorf("%w: subgraph %q after %d steps", ErrMaxSteps, s.name, step)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled at node %q: %w", current.name, err)
		}

		rc.Events.Publish(NodeStartedEvent(current.name, current.description))
		start := time.Now()

		output, err := current.fn(ctx, rc, value)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", current.name, err)
		}
		rc.Events.Publish(NodeCompletedEvent(current.name, time.Since(start)))

		if current.name == s.finish {
			return output, nil
		}

		next, err := s.route(current.name, output)
		if err != nil {
			return nil, err
		}
		current = next
		value = output
	}
}

// route picks the first outgoing edge whose predicate matches, in insertion
// order.
func (s *Subgraph) route(from string, output any) (*node, error) {
	for _, e := range s.edges[from] {
		if e.predicate(output) {
			return s.nodes[e.to], nil
		}
	}
	return nil, fmt.Errorf("%w: from node %q in subgraph %q (output %T)", ErrNoApplicableEdge, from, s.name, output)
}

// AsNode embeds the subgraph as a single node of an enclosing graph: its
// finish output becomes the node's output.
func (s *Subgraph) AsNode() NodeFunc {
	return func(ctx context.Context, rc *RunContext, input any) (any, error) {
		return s.Run(ctx, rc, input)
	}
}
