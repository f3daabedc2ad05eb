// Package workflows holds the domain values shared by the analyze and
// modify workflows.
package workflows

// ContainerEnv is the build/run recipe an analysis proposes for a
// repository.
type ContainerEnv struct {
	BaseImage    string `json:"baseImage"`
	BuildCommand string `json:"buildCommand,omitempty"`
	RunCommand   string `json:"runCommand,omitempty"`
	Port         int    `json:"port,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Requirements is a structured summary of an external requirements
// document.
type Requirements struct {
	Summary string   `json:"summary"`
	Items   []string `json:"items,omitempty"`
}

// VerificationResult is the outcome of running the verification command in
// a container.
type VerificationResult struct {
	Success         bool     `json:"success"`
	CommandExecuted string   `json:"commandExecuted"`
	ExitCode        int      `json:"exitCode"`
	Logs            []string `json:"logs,omitempty"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
}

// GitResult reports the commit/push step.
type GitResult struct {
	CommitSHA    string `json:"commitSha"`
	Pushed       bool   `json:"pushed"`
	BranchName   string `json:"branchName"`
	PushRejected bool   `json:"pushRejected"`
	Message      string `json:"message"`
}

// VerificationStatus classifies how a modification run ended.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "SUCCESS"
	VerificationFailed  VerificationStatus = "FAILED_VERIFICATION"
	PushFailed          VerificationStatus = "FAILED_PUSH"
	NotVerified         VerificationStatus = "NOT_VERIFIED"
)
