package llm

import (
	"context"
	"testing"
	"time"

	"github.com/AndVl1/repoagent/internal/errors"
)

func fastRetry(attempts int) errors.RetryConfig {
	return errors.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryClient_TransientThenSuccess(t *testing.T) {
	mock := NewMock("m").
		EnqueueError(errors.NewTransientError(nil, "rate limited: 429")).
		EnqueueText("ok")

	client := NewRetryClient(mock, fastRetry(2), nil)
	resp, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", mock.CallCount())
	}
}

func TestRetryClient_PermanentFailsFast(t *testing.T) {
	mock := NewMock("m").
		EnqueueError(errors.NewPermanentError(nil, "401 unauthorized")).
		EnqueueText("never reached")

	client := NewRetryClient(mock, fastRetry(3), nil)
	if _, err := client.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("permanent error must not retry, got %d attempts", mock.CallCount())
	}
}

func TestRetryClient_StreamFallsBackToBuffered(t *testing.T) {
	mock := NewMock("m").
		EnqueueError(errors.NewTransientError(nil, "connection reset")).
		EnqueueText("recovered")

	client := NewRetryClient(mock, fastRetry(2), nil)
	var chunks int
	resp, err := client.StreamComplete(context.Background(), CompletionRequest{}, func(StreamChunk) { chunks++ })
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if resp.Content != "recovered" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
}
