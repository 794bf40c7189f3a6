// Package main provides invitectl, the operator CLI for the invitation service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(defaultEnv()).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
