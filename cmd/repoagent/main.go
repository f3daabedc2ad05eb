// Command repoagent analyzes and modifies code repositories on request,
// driving an LLM through repository tools and reporting progress as it goes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "repoagent: %v\n", err)
		os.Exit(1)
	}
}
