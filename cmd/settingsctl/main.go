// Package main provides the entry point for the settingsctl CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-settings/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCodeForError(err))
	}
}
