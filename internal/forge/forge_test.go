package forge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AndVl1/repoagent/internal/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL: server.URL,
		Token:   "tok",
		Retry:   errors.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, nil)
}

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		in          string
		owner, name string
		wantErr     bool
	}{
		{in: "https://github.com/acme/widget", owner: "acme", name: "widget"},
		{in: "https://github.com/acme/widget.git", owner: "acme", name: "widget"},
		{in: "git@github.com:acme/widget.git", owner: "acme", name: "widget"},
		{in: "https://host.example/acme/widget/extra", owner: "acme", name: "widget"},
		{in: "not a url", wantErr: true},
		{in: "https://github.com/acme", wantErr: true},
	}
	for _, c := range cases {
		repo, err := ParseRepoURL(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if repo.Owner != c.owner || repo.Name != c.name {
			t.Errorf("%q: got %s/%s", c.in, repo.Owner, repo.Name)
		}
	}
}

func TestDefaultBranch(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("missing token")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": "develop"})
	}))

	branch, err := client.DefaultBranch(context.Background(), Repo{Owner: "acme", Name: "widget"})
	if err != nil {
		t.Fatalf("default branch: %v", err)
	}
	if branch != "develop" {
		t.Fatalf("got %q", branch)
	}
}

func TestCreatePullRequest(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/acme/widget/pulls" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["head"] != "ai/task-1" || body["base"] != "main" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number":   7,
			"html_url": "https://github.com/acme/widget/pull/7",
		})
	}))

	pr, err := client.CreatePullRequest(context.Background(), Repo{Owner: "acme", Name: "widget"},
		"Add feature", "details", "ai/task-1", "main")
	if err != nil {
		t.Fatalf("create PR: %v", err)
	}
	if pr.Number != 7 || pr.URL != "https://github.com/acme/widget/pull/7" {
		t.Fatalf("unexpected PR: %+v", pr)
	}
}

func TestFileContent_Base64(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte("package main\n")),
			"encoding": "base64",
		})
	}))

	content, err := client.FileContent(context.Background(), Repo{Owner: "a", Name: "b"}, "cmd/main.go", "main")
	if err != nil {
		t.Fatalf("file content: %v", err)
	}
	if content != "package main\n" {
		t.Fatalf("got %q", content)
	}
}

func TestListTree(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") != "1" {
			t.Error("tree listing must be recursive")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tree": []map[string]any{
				{"path": "README.md", "type": "blob", "size": 12},
				{"path": "src", "type": "tree"},
			},
		})
	}))

	tree, err := client.ListTree(context.Background(), Repo{Owner: "a", Name: "b"}, "main")
	if err != nil {
		t.Fatalf("list tree: %v", err)
	}
	if len(tree) != 2 || tree[0].Path != "README.md" || tree[1].Type != "tree" {
		t.Fatalf("unexpected tree: %+v", tree)
	}
}

func TestRetry_TransientServerError(t *testing.T) {
	attempts := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"default_branch": "main"})
	}))

	branch, err := client.DefaultBranch(context.Background(), Repo{Owner: "a", Name: "b"})
	if err != nil {
		t.Fatalf("default branch: %v", err)
	}
	if branch != "main" || attempts != 2 {
		t.Fatalf("expected retry then success, got branch=%q attempts=%d", branch, attempts)
	}
}

func TestNoRetry_NotFound(t *testing.T) {
	attempts := 0
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))

	if _, err := client.DefaultBranch(context.Background(), Repo{Owner: "a", Name: "b"}); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("404 must not retry, got %d attempts", attempts)
	}
}
