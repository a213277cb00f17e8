package main

import (
	"os"

	"github.com/chazu/impactmesh/internal/cli/commands"
	"github.com/fatih/color"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
