// Command syncjob runs one catalog sync and prints its result as JSON.
// It exits with code 1 when the sync failed, for cron and job schedulers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/niksmo/pricesync/config"
	"github.com/niksmo/pricesync/internal/app"
	"github.com/niksmo/pricesync/pkg/sigctx"
)

const closeTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	sigCtx, stop := sigctx.NotifyContext()
	defer stop()

	cfg := config.Load()
	job := app.New(sigCtx, cfg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		job.Close(ctx)
	}()

	res := job.Syncer().RunSync(sigCtx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "failed to print result: %v\n", err)
	}

	if !res.Success {
		return 1
	}
	return 0
}
