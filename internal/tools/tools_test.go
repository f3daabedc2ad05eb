package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
)

func echoTool(name string) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name: name,
			Parameters: llm.ParameterSchema{
				Type: "object",
				Properties: map[string]llm.Property{
					"text": {Type: "string"},
				},
				Required: []string{"text"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{Content: args["text"].(string)}, nil
		},
	}
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool("echo")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(echoTool("echo")); err == nil {
		t.Fatal("second registration of the same name must fail")
	}
}

func TestRegistry_CatalogOrder(t *testing.T) {
	r := NewRegistry().MustRegister(echoTool("b"), echoTool("a"))
	defs := r.Definitions()
	if defs[0].Name != "b" || defs[1].Name != "a" {
		t.Fatalf("catalog must preserve registration order: %v", defs)
	}
}

func decodeResult(t *testing.T, msg llm.Message) Result {
	t.Helper()
	var result Result
	if err := json.Unmarshal([]byte(msg.Content), &result); err != nil {
		t.Fatalf("tool message is not a Result: %v", err)
	}
	return result
}

func TestInvoker_ValidatesInput(t *testing.T) {
	inv := NewInvoker(NewRegistry().MustRegister(echoTool("echo")), nil)
	rc := graph.NewRunContext(graph.NewBus(8), nil)

	msg := inv.Invoke(context.Background(), rc, llm.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: map[string]any{"wrong": "field"},
	})
	result := decodeResult(t, msg)
	if !result.IsError {
		t.Fatalf("schema violation must produce an error result: %+v", result)
	}
	if msg.ToolCallID != "c1" {
		t.Fatalf("result must carry the call id, got %q", msg.ToolCallID)
	}
}

func TestInvoker_HandlerFailureIsToolResult(t *testing.T) {
	failing := Tool{
		Definition: llm.ToolDefinition{
			Name:       "boom",
			Parameters: llm.ParameterSchema{Type: "object", Properties: map[string]llm.Property{}},
		},
		Handler: func(ctx context.Context, args map[string]any) (Result, error) {
			return Result{}, errors.New("disk on fire")
		},
	}
	inv := NewInvoker(NewRegistry().MustRegister(failing), nil)
	rc := graph.NewRunContext(graph.NewBus(8), nil)

	result := decodeResult(t, inv.Invoke(context.Background(), rc, llm.ToolCall{ID: "c1", Name: "boom"}))
	if !result.IsError || !strings.Contains(result.Content, "disk on fire") {
		t.Fatalf("handler failure must surface as an error result: %+v", result)
	}
}

func TestInvoker_UnknownTool(t *testing.T) {
	inv := NewInvoker(NewRegistry().MustRegister(echoTool("echo")), nil)
	rc := graph.NewRunContext(graph.NewBus(8), nil)

	result := decodeResult(t, inv.Invoke(context.Background(), rc, llm.ToolCall{ID: "c1", Name: "nope"}))
	if !result.IsError || !strings.Contains(result.Content, "unknown tool") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInvoker_LogsAndEvents(t *testing.T) {
	inv := NewInvoker(NewRegistry().MustRegister(echoTool("echo")), nil)
	bus := graph.NewBus(8)
	rc := graph.NewRunContext(bus, nil)

	inv.Invoke(context.Background(), rc, llm.ToolCall{
		ID:        "c1",
		Name:      "echo",
		Arguments: map[string]any{"text": "hi"},
	})

	log, ok := graph.Get(rc.Session, graph.ToolCallLogKey)
	if !ok || len(log) != 1 {
		t.Fatalf("expected one tool-call log entry, got %v", log)
	}
	if !strings.HasPrefix(log[0], "echo(") || !strings.Contains(log[0], `"text":"hi"`) {
		t.Fatalf("log entry must carry name and serialized args: %q", log[0])
	}

	bus.Close()
	var toolEvents int
	for e := range bus.Events() {
		if e.Kind == graph.EventToolExecution {
			toolEvents++
			if e.ToolName != "echo" {
				t.Fatalf("unexpected tool name %q", e.ToolName)
			}
		}
	}
	if toolEvents != 1 {
		t.Fatalf("expected one ToolExecution event, got %d", toolEvents)
	}
}
