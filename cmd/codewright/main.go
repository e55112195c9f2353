// Package main provides the entry point for the codewright CLI.
package main

import (
	"os"

	"github.com/codewright/codewright/cmd/codewright/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
