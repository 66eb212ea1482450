// glmchat - a terminal client for GLM chat backends.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/glmchat-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	// SIGINT is left to the commands: it stops a streaming reply rather than
	// the process.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cli.SetupColors()

	app := cli.NewApp(cli.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	})
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
