package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AndVl1/repoagent/internal/graph"
	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/logging"
)

// Invoker dispatches LLM tool calls to registered handlers. Input is
// validated against the tool's schema before the handler runs; validation
// and handler failures become error results for the model, never run
// failures.
type Invoker struct {
	registry *Registry
	logger   logging.Logger

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewInvoker creates an invoker over a registry.
func NewInvoker(registry *Registry, logger logging.Logger) *Invoker {
	return &Invoker{
		registry: registry,
		logger:   logging.OrNop(logger),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Invoke runs one tool call and returns the tool message for the
// conversation. Every invocation is appended to the run's tool-call log and
// rebroadcast as a ToolExecution event.
func (inv *Invoker) Invoke(ctx context.Context, rc *graph.RunContext, call llm.ToolCall) llm.Message {
	args := serializeArgs(call.Arguments)
	graph.AppendToolCall(rc.Session, fmt.Sprintf("%s(%s)", call.Name, args))
	rc.Events.Publish(graph.ToolExecutionEvent(call.Name, args))

	result := inv.execute(ctx, call)
	if result.IsError {
		inv.logger.Warn("tool %s failed: %s", call.Name, result.Content)
	} else {
		inv.logger.Debug("tool %s ok (%d chars)", call.Name, len(result.Content))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"content":%q,"isError":true}`, err.Error()))
	}
	return llm.NewToolMessage(string(payload), call.ID)
}

func (inv *Invoker) execute(ctx context.Context, call llm.ToolCall) Result {
	tool, ok := inv.registry.Get(call.Name)
	if !ok {
		return ErrorResult("unknown tool %q; available tools: %v", call.Name, inv.registry.Names())
	}

	if err := inv.validateInput(tool.Definition, call.Arguments); err != nil {
		return ErrorResult("invalid arguments for %s: %v", call.Name, err)
	}

	result, err := tool.Handler(ctx, call.Arguments)
	if err != nil {
		return ErrorResult("%s: %v", call.Name, err)
	}
	return result
}

func (inv *Invoker) validateInput(def llm.ToolDefinition, args map[string]any) error {
	schema, err := inv.compiledSchema(def)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", def.Name, err)
	}
	// Round-trip through JSON so numeric types match what the validator
	// expects from decoded documents.
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

func (inv *Invoker) compiledSchema(def llm.ToolDefinition) (*jsonschema.Schema, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if schema, ok := inv.schemas[def.Name]; ok {
		return schema, nil
	}
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString(def.Name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	inv.schemas[def.Name] = schema
	return schema, nil
}
