package main

import (
	"context"

	"github.com/niksmo/pricesync/config"
	"github.com/niksmo/pricesync/internal/app"
	"github.com/niksmo/pricesync/pkg/sigctx"
)

func main() {
	sigCtx, closeApp := sigctx.NotifyContext()
	defer closeApp()

	cfg := config.Load()
	cfg.Print()

	service := app.New(sigCtx, cfg)

	service.Run(closeApp)

	<-sigCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	service.Close(ctx)
}
