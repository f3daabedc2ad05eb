// Package modify implements the repository modification workflow: plan a
// change, apply it with file-mutation tools on a working branch, verify it
// in a container when a build recipe is known, then commit, push and open a
// pull request.
package modify

import (
	"github.com/AndVl1/repoagent/internal/workflows"
)

// Request is the submitted modification request.
type Request struct {
	RepoURL          string                  `json:"repoUrl"`
	UserRequest      string                  `json:"userRequest"`
	ContainerEnv     *workflows.ContainerEnv `json:"containerEnv,omitempty"`
	EnableEmbeddings bool                    `json:"enableEmbeddings"`
}

// ModificationPlan is the structured plan produced by the analysis turn.
type ModificationPlan struct {
	ModificationPlan string                  `json:"modificationPlan"`
	FilesToModify    []string                `json:"filesToModify,omitempty"`
	Dependencies     []string                `json:"dependencies,omitempty"`
	ContainerEnv     *workflows.ContainerEnv `json:"containerEnv,omitempty"`
}

// Response is the terminal modification value.
type Response struct {
	Success            bool                         `json:"success"`
	PRURL              string                       `json:"prUrl,omitempty"`
	Diff               string                       `json:"diff,omitempty"`
	CommitSHA          string                       `json:"commitSha,omitempty"`
	BranchName         string                       `json:"branchName,omitempty"`
	FilesModified      []string                     `json:"filesModified"`
	VerificationStatus workflows.VerificationStatus `json:"verificationStatus"`
	IterationsUsed     int                          `json:"iterationsUsed"`
	Message            string                       `json:"message"`
	ErrorMessage       string                       `json:"errorMessage,omitempty"`
}

const modificationPlanSchema = `{
	"type": "object",
	"properties": {
		"modificationPlan": {"type": "string"},
		"filesToModify": {"type": "array", "items": {"type": "string"}},
		"dependencies": {"type": "array", "items": {"type": "string"}},
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
	"required": ["modificationPlan"]
}`

const verificationResultSchema = `{
	"type": "object",
	"properties": {
		"success": {"type": "boolean"},
		"commandExecuted": {"type": "string"},
		"exitCode": {"type": "integer"},
		"logs": {"type": "array", "items": {"type": "string"}},
		"errorMessage": {"type": "string"}
	},
	"required": ["success", "commandExecuted", "exitCode"]
}`
