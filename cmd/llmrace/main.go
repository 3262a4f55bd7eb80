// Command llmrace is the CLI wrapper around the race orchestrator,
// deliberately kept thin per spec.md §1: it only loads configuration,
// wires collaborators, and reports the result. Modeled on the teacher's
// cmd/tokenhub entry point (structured logging setup, config loaded once
// up front); flag parsing uses cobra with a single Execute() call.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
