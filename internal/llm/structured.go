package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AndVl1/repoagent/internal/logging"
)

// Parsed pairs a schema-validated value with the assistant message it was
// parsed from.
type Parsed[T any] struct {
	Value   T
	Message Message
}

// ParseError reports that structured output did not validate after all repair
// attempts. LastOutput carries the final malformed text for diagnostics.
type ParseError struct {
	Attempts   int
	LastOutput string
	Cause      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// RepairConfig selects the model used to fix malformed structured output and
// how many repair passes are allowed. Repair runs on a separate, typically
// cheaper model than the main completion.
type RepairConfig struct {
	Client  Client
	Retries int
}

// StructuredRequest carries everything for one structured completion.
type StructuredRequest struct {
	Messages []Message
	Schema   string // JSON Schema the output must validate against
	Examples []string
	Repair   RepairConfig
}

// RepairObserver, when set on the request context via WithRepairObserver, is
// invoked once per repair pass.
type RepairObserver func(attempt int, validationErr error)

type repairObserverKey struct{}

// WithRepairObserver attaches an observer called on every repair pass.
func WithRepairObserver(ctx context.Context, fn RepairObserver) context.Context {
	return context.WithValue(ctx, repairObserverKey{}, fn)
}

// CompleteStructured asks the model for a JSON object conforming to the
// request schema. Malformed output triggers up to Repair.Retries passes
// against the repair model, each carrying the previous output and the
// validation error. The schema is the ground truth; free text around the
// JSON is stripped, not trusted.
func CompleteStructured[T any](ctx context.Context, client Client, req StructuredRequest, logger logging.Logger) (*Parsed[T], error) {
	logger = logging.OrNop(logger)

	schema, err := compileSchema(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	messages := req.Messages
	if len(req.Examples) > 0 {
		var b strings.Builder
		b.WriteString("Examples of valid output:\n")
		for _, ex := range req.Examples {
			b.WriteString(ex)
			b.WriteString("\n")
		}
		messages = append(messages, NewSystemMessage(b.String()))
	}

	resp, err := client.Complete(ctx, CompletionRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	value, validationErr := decodeAgainst[T](schema, resp.Content)
	if validationErr == nil {
		return &Parsed[T]{Value: *value, Message: NewAssistantMessage(resp.Content)}, nil
	}

	observer, _ := ctx.Value(repairObserverKey{}).(RepairObserver)
	repairClient := req.Repair.Client
	if repairClient == nil {
		repairClient = client
	}

	lastOutput := resp.Content
	attempts := 1
	for i := 0; i < req.Repair.Retries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("repair cancelled: %w", err)
		}
		attempts++
		logger.Debug("repair pass %d/%d: %v", i+1, req.Repair.Retries, validationErr)
		if observer != nil {
			observer(i+1, validationErr)
		}

		repairResp, err := repairClient.Complete(ctx, CompletionRequest{
			Messages: []Message{
				NewSystemMessage("You fix malformed JSON. Output only the corrected JSON object, nothing else."),
				NewUserMessage(fmt.Sprintf(
					"The following output must conform to this JSON Schema:\n%s\n\nValidation error:\n%s\n\nPrevious output:\n%s",
					req.Schema, validationErr, lastOutput)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("repair call: %w", err)
		}

		lastOutput = repairResp.Content
		value, validationErr = decodeAgainst[T](schema, repairResp.Content)
		if validationErr == nil {
			return &Parsed[T]{Value: *value, Message: NewAssistantMessage(repairResp.Content)}, nil
		}
	}

	return nil, &ParseError{Attempts: attempts, LastOutput: lastOutput, Cause: validationErr}
}

// decodeAgainst strips fences, repairs obvious JSON damage, validates against
// the schema, then unmarshals into T.
func decodeAgainst[T any](schema *jsonschema.Schema, raw string) (*T, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, fmt.Errorf("empty output")
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return nil, fmt.Errorf("invalid JSON after repair: %w", err)
		}
		text = repaired
	}

	if err := schema.Validate(decoded); err != nil {
		return nil, err
	}

	var value T
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("unmarshal into target: %w", err)
	}
	return &value, nil
}

// stripFences removes a surrounding ```json ... ``` block, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

var schemaCache sync.Map

func compileSchema(schema string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(schema); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("structured.schema.json", schema)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(schema, compiled)
	return compiled, nil
}

// parseToolArguments decodes tool-call arguments, repairing malformed JSON
// the model sometimes emits.
func parseToolArguments(raw string, logger logging.Logger) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			logging.OrNop(logger).Warn("unparseable tool arguments: %v", err)
			return map[string]any{}
		}
		if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			logging.OrNop(logger).Warn("tool arguments invalid after repair: %v", err)
			return map[string]any{}
		}
	}
	return args
}
