package tools

import (
	"context"
	"io"
	"net/http"

	"github.com/AndVl1/repoagent/internal/llm"
)

// DocFetch exposes remote document retrieval to the requirements turn.
type DocFetch struct {
	client   *http.Client
	maxBytes int64
}

// NewDocFetch creates the fetch tool; maxBytes caps the returned body.
func NewDocFetch(client *http.Client, maxBytes int64) *DocFetch {
	if client == nil {
		client = &http.Client{}
	}
	return &DocFetch{client: client, maxBytes: maxBytes}
}

func (d *DocFetch) Tools() []Tool {
	return []Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "fetch-document",
				Description: "Fetch a document over HTTP and return its text.",
				Parameters: llm.ParameterSchema{
					Type: "object",
					Properties: map[string]llm.Property{
						"url": {Type: "string", Description: "Document URL."},
					},
					Required: []string{"url"},
				},
			},
			Handler: d.fetch,
		},
	}
}

func (d *DocFetch) fetch(ctx context.Context, args map[string]any) (Result, error) {
	url := stringArg(args, "url")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrorResult("fetch %s: %v", url, err), nil
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return ErrorResult("fetch %s: %v", url, err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ErrorResult("fetch %s: status %d", url, resp.StatusCode), nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return ErrorResult("fetch %s: %v", url, err), nil
	}
	return Result{
		Content: string(body),
		Data:    map[string]any{"contentType": resp.Header.Get("Content-Type"), "bytes": len(body)},
	}, nil
}
