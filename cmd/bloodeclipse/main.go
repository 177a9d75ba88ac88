// Package main is the entry point of the BloodEclipse-AI CLI.
// Uses cobra for command management.
package main

import (
	"fmt"
	"os"

	"github.com/Shadow-Monarch-1/BloodEclipse-AI/cmd/bloodeclipse/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
