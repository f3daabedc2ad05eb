package main

import (
	"fmt"
	"io"

	"github.com/AndVl1/repoagent/internal/graph"
)

// renderEvents prints the run's event stream until the bus closes, then
// closes done. Stream chunks render as raw text, everything else as one line
// per event.
func renderEvents(w io.Writer, bus *graph.Bus, done chan<- struct{}) {
	defer close(done)
	streaming := false

	endStream := func() {
		if streaming {
			fmt.Fprintln(w)
			streaming = false
		}
	}

	for event := range bus.Events() {
		switch event.Kind {
		case graph.EventLLMStreamChunk:
			if event.Content != "" {
				fmt.Fprint(w, event.Content)
				streaming = true
			}
			if event.IsComplete {
				endStream()
			}
		case graph.EventStarted, graph.EventStageUpdate:
			endStream()
			fmt.Fprintf(w, "• %s\n", event.Message)
		case graph.EventProgress:
			endStream()
			fmt.Fprintf(w, "[%d/%d] %s\n", event.CurrentStep, event.TotalSteps, event.StepName)
		case graph.EventToolExecution:
			endStream()
			args := event.ToolArgs
			if len(args) > 120 {
				args = args[:120] + "…"
			}
			fmt.Fprintf(w, "  ⚙ %s %s\n", event.ToolName, args)
		case graph.EventRAGIndexing:
			endStream()
			status := ""
			if event.IsComplete {
				status = " (done)"
			}
			fmt.Fprintf(w, "  ⌕ indexed %d files, %d chunks%s\n", event.FilesIndexed, event.TotalChunks, status)
		case graph.EventError:
			endStream()
			fmt.Fprintf(w, "✗ %s\n", event.Message)
		case graph.EventCompleted:
			endStream()
			fmt.Fprintf(w, "✓ %s\n", event.Message)
		case graph.EventNodeStarted:
			if event.Description != "" {
				endStream()
				fmt.Fprintf(w, "  → %s\n", event.Description)
			}
		}
	}
	endStream()
}
