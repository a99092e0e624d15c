// Package main provides the entry point for pocketredis-cli, a
// command-line client for issuing commands to a pocketredis server.
package main

import (
	"fmt"
	"os"

	"pocketredis.dev/pocketredis/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
