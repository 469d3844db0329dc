package main

import (
	"os"

	"github.com/opentripplanner/custom-release/cmd/cli"
)

// main runs custom-release; the application reports its own failures.
func main() {
	if cli.NewApplication().Execute() != nil {
		os.Exit(1)
	}
}
