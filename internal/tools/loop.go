package tools

import (
	"context"
	"fmt"

	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
)

// UsageKey accumulates token usage across every LLM call of the run.
var UsageKey = graph.NewKey[llm.TokenUsage]("llm-usage")

// addUsage folds one response's usage into the run total.
func addUsage(s *graph.Session, usage llm.TokenUsage) {
	total, _ := graph.Get(s, UsageKey)
	total.Add(usage)
	graph.Set(s, UsageKey, total)
}

// ToolLoop builds the request/execute/send-result cycle as a subgraph:
//
//	send-request --assistant-text--> process-result
//	     |
//	     +--tool-call--> execute-tool --> send-tool-result
//	                                        |
//	                                        +--tool-call--> execute-tool
//	                                        +--assistant-text--> process-result
//
// Input is the initial conversation ([]llm.Message); output is the final
// graph.AssistantMessage. Every execute-tool is immediately followed by one
// send-tool-result, so the model sees each result before its next action.
type ToolLoop struct {
	name     string
	client   llm.StreamingClient
	invoker  *Invoker
	tools    []llm.ToolDefinition
	maxSteps int

	messagesKey graph.Key[[]llm.Message]
}

// NewToolLoop creates a loop named name using the given tool catalog.
func NewToolLoop(name string, client llm.StreamingClient, invoker *Invoker, catalog []llm.ToolDefinition) *ToolLoop {
	return &ToolLoop{
		name:        name,
		client:      client,
		invoker:     invoker,
		tools:       catalog,
		messagesKey: graph.NewKey[[]llm.Message](name + ".messages"),
	}
}

// MaxSteps bounds the loop's node executions (0 keeps the engine default).
func (l *ToolLoop) MaxSteps(n int) *ToolLoop {
	l.maxSteps = n
	return l
}

// Subgraph assembles the loop.
func (l *ToolLoop) Subgraph() *graph.Subgraph {
	b := graph.NewBuilder(l.name, l.tools...).
		Node("send-request", l.sendRequest).
		Node("execute-tool", l.executeTool).
		Node("send-tool-result", l.sendToolResult).
		Node("process-result", l.processResult).
		Edge("send-request", "execute-tool", graph.OnToolCall).
		Edge("send-request", "process-result", graph.OnAssistantMessage).
		Edge("execute-tool", "send-tool-result", graph.Always).
		Edge("send-tool-result", "execute-tool", graph.OnToolCall).
		Edge("send-tool-result", "process-result", graph.OnAssistantMessage).
		Start("send-request").
		Finish("process-result")
	if l.maxSteps > 0 {
		b.MaxSteps(l.maxSteps)
	}
	return b.MustBuild()
}

// Run executes the loop against an initial conversation.
func (l *ToolLoop) Run(ctx context.Context, rc *graph.RunContext, messages []llm.Message) (graph.AssistantMessage, error) {
	out, err := l.Subgraph().Run(ctx, rc, messages)
	if err != nil {
		return graph.AssistantMessage{}, err
	}
	msg, ok := out.(graph.AssistantMessage)
	if !ok {
		return graph.AssistantMessage{}, fmt.Errorf("tool loop %s finished with %T, not an assistant message", l.name, out)
	}
	return msg, nil
}

func (l *ToolLoop) sendRequest(ctx context.Context, rc *graph.RunContext, input any) (any, error) {
	messages, ok := input.([]llm.Message)
	if !ok {
		return nil, fmt.Errorf("tool loop %s expects []llm.Message input, got %T", l.name, input)
	}
	graph.Set(rc.Session, l.messagesKey, messages)
	return l.complete(ctx, rc)
}

func (l *ToolLoop) executeTool(ctx context.Context, rc *graph.RunContext, input any) (any, error) {
	request, ok := input.(graph.ToolCallRequest)
	if !ok {
		return nil, fmt.Errorf("execute-tool expects a tool-call request, got %T", input)
	}
	results := make([]llm.Message, 0, len(request.Calls))
	for _, call := range request.Calls {
		results = append(results, l.invoker.Invoke(ctx, rc, call))
	}
	return graph.ToolResult{Messages: results}, nil
}

func (l *ToolLoop) sendToolResult(ctx context.Context, rc *graph.RunContext, input any) (any, error) {
	result, ok := input.(graph.ToolResult)
	if !ok {
		return nil, fmt.Errorf("send-tool-result expects a tool result, got %T", input)
	}
	messages, err := graph.Require(rc.Session, l.messagesKey)
	if err != nil {
		return nil, err
	}
	graph.Set(rc.Session, l.messagesKey, append(messages, result.Messages...))
	return l.complete(ctx, rc)
}

func (l *ToolLoop) processResult(ctx context.Context, rc *graph.RunContext, input any) (any, error) {
	return input, nil
}

// complete runs one LLM call over the stored conversation, streaming chunks
// to the event bus, and appends the assistant turn.
func (l *ToolLoop) complete(ctx context.Context, rc *graph.RunContext) (any, error) {
	messages, err := graph.Require(rc.Session, l.messagesKey)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.StreamComplete(ctx, llm.CompletionRequest{
		Messages: messages,
		Tools:    l.tools,
	}, func(chunk llm.StreamChunk) {
		rc.Events.Publish(graph.LLMStreamChunkEvent(chunk.Content, chunk.Final))
	})
	if err != nil {
		return nil, err
	}
	addUsage(rc.Session, resp.Usage)

	assistant := llm.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
	graph.Set(rc.Session, l.messagesKey, append(messages, assistant))

	if resp.HasToolCalls() {
		return graph.ToolCallRequest{Calls: resp.ToolCalls, Message: assistant}, nil
	}
	return graph.AssistantMessage{Content: resp.Content}, nil
}
