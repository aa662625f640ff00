package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/retailops/sheetsync/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(commands.Execute(ctx))
}
