// Package analyze implements the repository analysis workflow: parse the
// request, optionally load external requirements, optionally index the
// repository for retrieval, analyze it through tool calls, and optionally
// validate buildability in a container.
package analyze

import (
	"github.com/AndVl1/repoagent/internal/llm"
	"github.com/AndVl1/repoagent/internal/workflows"
)

// Request is the submitted analysis request.
type Request struct {
	UserInput              string `json:"userInput"`
	APIKey                 string `json:"apiKey"`
	LLMProvider            string `json:"llmProvider"` // providerA | providerB | custom
	SelectedModel          string `json:"selectedModel"`
	CustomBaseURL          string `json:"customBaseUrl,omitempty"`
	CustomModel            string `json:"customModel,omitempty"`
	MaxContextTokens       int    `json:"maxContextTokens"`
	FixingMaxContextTokens int    `json:"fixingMaxContextTokens"`
	UseMainModelForFixing  bool   `json:"useMainModelForFixing"`
	FixingModel            string `json:"fixingModel"`
	AttachExternalDoc      bool   `json:"attachExternalDoc"`
	ExternalDocURL         string `json:"externalDocUrl,omitempty"`
	ForceSkipContainer     bool   `json:"forceSkipContainer"`
	EnableEmbeddings       bool   `json:"enableEmbeddings"`
}

// InitialAnalysis is the parsed form of the free-text request.
type InitialAnalysis struct {
	RepoURL         string `json:"repoUrl"`
	UserRequest     string `json:"userRequest"`
	Requirements    string `json:"requirements,omitempty"`
	ExternalDocsURL string `json:"externalDocsUrl,omitempty"`
}

// RepositoryAnalysis is the structured report synthesized after the
// tool-driven exploration.
type RepositoryAnalysis struct {
	TLDR                string                  `json:"tldr"`
	Analysis            string                  `json:"analysis"`
	UserRequestAnalysis string                  `json:"userRequestAnalysis,omitempty"`
	RepositoryReview    string                  `json:"repositoryReview,omitempty"`
	ContainerEnv        *workflows.ContainerEnv `json:"containerEnv,omitempty"`
}

// ContainerBuildInfo reports the optional container build step.
type ContainerBuildInfo struct {
	Success         bool     `json:"success"`
	ImageName       string   `json:"imageName,omitempty"`
	ImageSize       string   `json:"imageSize,omitempty"`
	DurationSeconds float64  `json:"durationSeconds"`
	Logs            []string `json:"logs,omitempty"`
}

// Response is the terminal analysis value. Success distinguishes a completed
// analysis from a failed one; Message carries the final reason either way.
type Response struct {
	Success             bool                    `json:"success"`
	TLDR                string                  `json:"tldr,omitempty"`
	Analysis            string                  `json:"analysis,omitempty"`
	Requirements        *workflows.Requirements `json:"requirements,omitempty"`
	UserRequestAnalysis string                  `json:"userRequestAnalysis,omitempty"`
	RepositoryReview    string                  `json:"repositoryReview,omitempty"`
	ContainerInfo       *ContainerBuildInfo     `json:"containerInfo,omitempty"`
	RAGNote             string                  `json:"ragNote,omitempty"`
	ToolCalls           []string                `json:"toolCalls"`
	Model               string                  `json:"model,omitempty"`
	Usage               *llm.TokenUsage         `json:"usage,omitempty"`
	Message             string                  `json:"message"`
}

const initialAnalysisSchema = `{
	"type": "object",
	"properties": {
		"repoUrl": {"type": "string"},
		"userRequest": {"type": "string"},
		"requirements": {"type": "string"},
		"externalDocsUrl": {"type": "string"}
	},
	"required": ["repoUrl", "userRequest"]
}`

const requirementsSchema = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"items": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary"]
}`

const repositoryAnalysisSchema = `{
	"type": "object",
	"properties": {
		"tldr": {"type": "string"},
		"analysis": {"type": "string"},
		"userRequestAnalysis": {"type": "string"},
		"repositoryReview": {"type": "string"},
		"containerEnv": {
			"type": "object",
			"properties": {
				"baseImage": {"type": "string"},
				"buildCommand": {"type": "string"},
				"runCommand": {"type": "string"},
				"port": {"type": "integer"},
				"notes": {"type": "string"}
			},
			"required": ["baseImage"]
		}
	},
	"required": ["tldr", "analysis"]
}`
