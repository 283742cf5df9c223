// Command streamctl reads and writes event streams stored in a document database.
//
// Usage:
//
//	streamctl --backend sqlite --dsn events.db migrate
//	streamctl --backend sqlite --dsn events.db append order-1 --expected none --event 'OrderPlaced:{"total":10}'
//	streamctl --backend sqlite --dsn events.db read order-1
//
// Settings come from a YAML file (--config or PUPSTREAM_CONFIG), then
// PUPSTREAM_* environment variables, then flags.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/getpup/pupstream/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
