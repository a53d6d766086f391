package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ning0612/nbsync/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, &cli.App{}, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
