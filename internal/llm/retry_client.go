package llm

import (
	"context"

	"github.com/AndVl1/repoagent/internal/errors"
	"github.com/AndVl1/repoagent/internal/logging"
)

// retryClient wraps a client with transient-error retry. Permanent failures
// (auth, bad request) surface immediately.
type retryClient struct {
	inner  StreamingClient
	config errors.RetryConfig
	logger logging.Logger
}

// NewRetryClient wraps inner with retry on transient failures.
func NewRetryClient(inner StreamingClient, config errors.RetryConfig, logger logging.Logger) StreamingClient {
	return &retryClient{inner: inner, config: config, logger: logging.OrNop(logger)}
}

func (c *retryClient) Model() string { return c.inner.Model() }

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return errors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*CompletionResponse, error) {
		return c.inner.Complete(ctx, req)
	}, c.logger)
}

func (c *retryClient) StreamComplete(ctx context.Context, req CompletionRequest, onChunk StreamFunc) (*CompletionResponse, error) {
	// Retrying a stream would replay chunks to the caller, so only the first
	// attempt streams; retries fall back to the buffered path.
	attempted := false
	return errors.RetryWithResult(ctx, c.config, func(ctx context.Context) (*CompletionResponse, error) {
		if attempted {
			return c.inner.Complete(ctx, req)
		}
		attempted = true
		return c.inner.StreamComplete(ctx, req, onChunk)
	}, c.logger)
}
