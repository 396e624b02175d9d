package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/chainguard-dev/depgate/cmd/depgate"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), os.Interrupt)
	defer done()

	if err := depgate.New().ExecuteContext(ctx); err != nil {
		log.Fatalf("error during command execution: %v", err)
	}
}
