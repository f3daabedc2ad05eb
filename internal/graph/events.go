package graph

import "time"

// EventKind tags an analysis event variant.
type EventKind string

const (
	EventStarted        EventKind = "started"
	EventStageUpdate    EventKind = "stage-update"
	EventToolExecution  EventKind = "tool-execution"
	EventNodeStarted    EventKind = "node-started"
	EventNodeCompleted  EventKind = "node-completed"
	EventRAGIndexing    EventKind = "rag-indexing"
	EventLLMStreamChunk EventKind = "llm-stream-chunk"
	EventError          EventKind = "error"
	EventCompleted      EventKind = "completed"
	EventProgress       EventKind = "progress"
)

// Event is one progress notification on the run's bus. ID is monotonically
// increasing per run.
type Event struct {
	ID        uint64    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`

	// Message carries the text for Started, StageUpdate, Error and
	// Completed variants.
	Message string `json:"message,omitempty"`

	// NodeStarted / NodeCompleted.
	NodeName    string        `json:"nodeName,omitempty"`
	Description string        `json:"description,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	// ToolExecution.
	ToolName string `json:"toolName,omitempty"`
	ToolArgs string `json:"toolArgs,omitempty"`

	// RAGIndexing.
	FilesIndexed int  `json:"filesIndexed,omitempty"`
	TotalChunks  int  `json:"totalChunks,omitempty"`
	IsComplete   bool `json:"isComplete,omitempty"`

	// LLMStreamChunk.
	Content string `json:"content,omitempty"`

	// Progress.
	CurrentStep int    `json:"currentStep,omitempty"`
	TotalSteps  int    `json:"totalSteps,omitempty"`
	StepName    string `json:"stepName,omitempty"`
}

func StartedEvent(message string) Event {
	return Event{Kind: EventStarted, Message: message}
}

func StageUpdateEvent(message string) Event {
	return Event{Kind: EventStageUpdate, Message: message}
}

func ToolExecutionEvent(name, args string) Event {
	return Event{Kind: EventToolExecution, ToolName: name, ToolArgs: args}
}

func NodeStartedEvent(name, description string) Event {
	return Event{Kind: EventNodeStarted, NodeName: name, Description: description}
}

func NodeCompletedEvent(name string, duration time.Duration) Event {
	return Event{Kind: EventNodeCompleted, NodeName: name, Duration: duration}
}

func RAGIndexingEvent(filesIndexed, totalChunks int, isComplete bool) Event {
	return Event{Kind: EventRAGIndexing, FilesIndexed: filesIndexed, TotalChunks: totalChunks, IsComplete: isComplete}
}

func LLMStreamChunkEvent(content string, isComplete bool) Event {
	return Event{Kind: EventLLMStreamChunk, Content: content, IsComplete: isComplete}
}

func ErrorEvent(message string) Event {
	return Event{Kind: EventError, Message: message}
}

func CompletedEvent(message string) Event {
	return Event{Kind: EventCompleted, Message: message}
}

func ProgressEvent(currentStep, totalSteps int, stepName string) Event {
	return Event{Kind: EventProgress, CurrentStep: currentStep, TotalSteps: totalSteps, StepName: stepName}
}
