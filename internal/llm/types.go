// Package llm provides the LLM client used by workflow nodes: a single-shot
// Complete call with optional streaming, retry wrapping, and structured
// (schema-validated) output with repair.
package llm

import "context"

// Message is one turn in a conversation.
type Message struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewToolMessage creates a tool-result message tied to a tool call id.
func NewToolMessage(content, toolCallID string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: toolCallID}
}

// ToolCall is a request from the model to execute a named tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema defines tool parameters in JSON Schema form.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another response.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest contains all parameters for one completion.
type CompletionRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// CompletionResponse is the model's reply: either free text or tool calls,
// not both.
type CompletionResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      TokenUsage `json:"usage"`
}

// HasToolCalls reports whether the model asked for tool execution.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// StreamChunk is one incremental piece of assistant text.
type StreamChunk struct {
	Content string
	Final   bool
}

// StreamFunc receives chunks during a streaming completion. A nil StreamFunc
// disables streaming delivery; the aggregated response is returned either way.
type StreamFunc func(chunk StreamChunk)

// Client is any LLM provider.
type Client interface {
	// Complete sends messages and returns a single response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier.
	Model() string
}

// StreamingClient additionally delivers incremental content chunks.
type StreamingClient interface {
	Client
	StreamComplete(ctx context.Context, req CompletionRequest, onChunk StreamFunc) (*CompletionResponse, error)
}

// Config configures an HTTP-based client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
	Headers    map[string]string
}
