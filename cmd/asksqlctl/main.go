package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/asksql/asksql/internal/cli/asksqlctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := asksqlctl.Run(ctx, os.Args[1:], asksqlctl.Options{
		BaseURL:   os.Getenv("ASKSQL_API_URL"),
		SessionID: os.Getenv("ASKSQL_SESSION_ID"),
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	})
	stop()
	os.Exit(code)
}
