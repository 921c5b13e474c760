package main

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/ps3netsrv/cmd/ps3netsrv/commands"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	root := commands.NewRootCmd()
	root.SetArgs(commands.NormalizeArgs(os.Args[1:]))

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
