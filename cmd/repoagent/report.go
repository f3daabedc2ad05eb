package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/AndVl1/repoagent/internal/workflows/analyze"
	"github.com/AndVl1/repoagent/internal/workflows/modify"
)

func printAnalyzeReport(w io.Writer, resp *analyze.Response) {
	if !resp.Success {
		fmt.Fprintf(w, "Analysis failed: %s\n", resp.Message)
		return
	}

	fmt.Fprintf(w, "TL;DR: %s\n\n%s\n", resp.TLDR, resp.Analysis)
	if resp.UserRequestAnalysis != "" {
		fmt.Fprintf(w, "\nAbout your request:\n%s\n", resp.UserRequestAnalysis)
	}
	if resp.RepositoryReview != "" {
		fmt.Fprintf(w, "\nRepository review:\n%s\n", resp.RepositoryReview)
	}
	if resp.Requirements != nil {
		fmt.Fprintf(w, "\nRequirements: %s\n", resp.Requirements.Summary)
		for _, item := range resp.Requirements.Items {
			fmt.Fprintf(w, "  - %s\n", item)
		}
	}
	if resp.ContainerInfo != nil {
		fmt.Fprintf(w, "\nContainer build: success=%v", resp.ContainerInfo.Success)
		if resp.ContainerInfo.ImageSize != "" {
			fmt.Fprintf(w, " size=%s", resp.ContainerInfo.ImageSize)
		}
		fmt.Fprintf(w, " (%.1fs)\n", resp.ContainerInfo.DurationSeconds)
	}
	if len(resp.ToolCalls) > 0 {
		fmt.Fprintf(w, "\n%d tool call(s):\n", len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			fmt.Fprintf(w, "  %s\n", call)
		}
	}
	if resp.Usage != nil {
		fmt.Fprintf(w, "\nTokens: %d prompt + %d completion = %d total (%s)\n",
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens, resp.Model)
	}
}

func printModifyReport(w io.Writer, resp *modify.Response) {
	if !resp.Success {
		fmt.Fprintf(w, "Modification failed (%s): %s\n", resp.VerificationStatus, resp.ErrorMessage)
		if resp.Diff != "" {
			fmt.Fprintf(w, "\n%s\n", resp.Diff)
		}
		return
	}

	fmt.Fprintf(w, "%s\n", resp.Message)
	if resp.PRURL != "" {
		fmt.Fprintf(w, "Pull request: %s\n", resp.PRURL)
	}
	fmt.Fprintf(w, "Branch: %s  Commit: %s  Verification: %s  Iterations: %d\n",
		resp.BranchName, resp.CommitSHA, resp.VerificationStatus, resp.IterationsUsed)
	if len(resp.FilesModified) > 0 {
		fmt.Fprintf(w, "Files: %s\n", strings.Join(resp.FilesModified, ", "))
	}
	if resp.Diff != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Diff)
	}
}
