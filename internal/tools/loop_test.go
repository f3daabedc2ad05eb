package tools

import (
	"context"
	"testing"

	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
)

func TestToolLoop_ToolCallsThenAnswer(t *testing.T) {
	registry := NewRegistry().MustRegister(echoTool("echo"))
	inv := NewInvoker(registry, nil)

	mock := llm.NewMock("m").
		EnqueueToolCall("c1", "echo", map[string]any{"text": "first"}).
		EnqueueToolCall("c2", "echo", map[string]any{"text": "second"}).
		EnqueueText("final answer")

	bus := graph.NewBus(64)
	rc := graph.NewRunContext(bus, nil)
	loop := NewToolLoop("analysis", mock, inv, registry.Definitions())

	out, err := loop.Run(context.Background(), rc, []llm.Message{llm.NewUserMessage("go")})
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if out.Content != "final answer" {
		t.Fatalf("unexpected final message %q", out.Content)
	}

	// Every execute-tool is followed by exactly one send-tool-result.
	bus.Close()
	var executes, sendResults int
	for e := range bus.Events() {
		if e.Kind != graph.EventNodeStarted {
			continue
		}
		switch e.NodeName {
		case "execute-tool":
			executes++
		case "send-tool-result":
			sendResults++
		}
	}
	if executes != 2 || sendResults != 2 {
		t.Fatalf("expected 2 execute / 2 send-result, got %d / %d", executes, sendResults)
	}

	log, _ := graph.Get(rc.Session, graph.ToolCallLogKey)
	if len(log) != 2 {
		t.Fatalf("expected 2 tool-call log entries, got %v", log)
	}

	// The model must have seen each tool result before its next action.
	requests := mock.Requests()
	if len(requests) != 3 {
		t.Fatalf("expected 3 LLM calls, got %d", len(requests))
	}
	last := requests[2].Messages
	var toolMessages int
	for _, m := range last {
		if m.Role == "tool" {
			toolMessages++
		}
	}
	if toolMessages != 2 {
		t.Fatalf("final call must include both tool results, got %d", toolMessages)
	}
}

func TestToolLoop_ImmediateAnswer(t *testing.T) {
	registry := NewRegistry().MustRegister(echoTool("echo"))
	mock := llm.NewMock("m").EnqueueText("no tools needed")

	rc := graph.NewRunContext(graph.NewBus(8), nil)
	loop := NewToolLoop("quick", mock, NewInvoker(registry, nil), registry.Definitions())

	out, err := loop.Run(context.Background(), rc, []llm.Message{llm.NewUserMessage("hi")})
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if out.Content != "no tools needed" {
		t.Fatalf("unexpected output %q", out.Content)
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected a single LLM call, got %d", mock.CallCount())
	}
}

func TestToolLoop_AccumulatesUsage(t *testing.T) {
	registry := NewRegistry().MustRegister(echoTool("echo"))
	mock := llm.NewMock("m").
		Enqueue(&llm.CompletionResponse{
			ToolCalls:  []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "x"}}},
			StopReason: "tool_calls",
			Usage:      llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil).
		Enqueue(&llm.CompletionResponse{
			Content:    "done",
			StopReason: "stop",
			Usage:      llm.TokenUsage{PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27},
		}, nil)

	rc := graph.NewRunContext(graph.NewBus(32), nil)
	loop := NewToolLoop("usage", mock, NewInvoker(registry, nil), registry.Definitions())

	if _, err := loop.Run(context.Background(), rc, []llm.Message{llm.NewUserMessage("go")}); err != nil {
		t.Fatalf("loop: %v", err)
	}
	usage, ok := graph.Get(rc.Session, UsageKey)
	if !ok || usage.TotalTokens != 42 {
		t.Fatalf("expected accumulated usage 42, got %+v", usage)
	}
}

func TestToolLoop_CeilingStopsRunaway(t *testing.T) {
	registry := NewRegistry().MustRegister(echoTool("echo"))
	mock := llm.NewMock("m")
	for i := 0; i < 50; i++ {
		mock.EnqueueToolCall("c", "echo", map[string]any{"text": "again"})
	}

	rc := graph.NewRunContext(graph.NewBus(8), nil)
	loop := NewToolLoop("runaway", mock, NewInvoker(registry, nil), registry.Definitions()).MaxSteps(10)

	if _, err := loop.Run(context.Background(), rc, []llm.Message{llm.NewUserMessage("go")}); err == nil {
		t.Fatal("expected step ceiling error")
	}
}
