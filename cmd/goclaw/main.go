// Package main is the entry point for the goclaw CLI.
package main

import (
	"os"

	"github.com/goclaw/goclaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
