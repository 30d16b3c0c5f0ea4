// Package main is the tijara-sync binary: the terminal sync core and its
// maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/kimhsiao/tijara/backend/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	cli.Version = Version
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
