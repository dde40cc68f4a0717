// Package main provides the entry point for lsctl.
//
// lsctl reads and writes entries of a localstorage-slim store from the
// command line, and can run the expiry sweeper as a long-lived process.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/digitalfortress-tech/localstorage-slim/internal/cli/command"
)

func main() {
	cli.VersionPrinter = command.PrintVersion
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
