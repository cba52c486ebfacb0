// dmux runs parallel AI coding agents in tmux panes, each in its own git
// worktree.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dicklesworthstone/dmux/internal/cli"
	"github.com/Dicklesworthstone/dmux/internal/output"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		output.Errorf("%v", err)
		os.Exit(1)
	}
}
