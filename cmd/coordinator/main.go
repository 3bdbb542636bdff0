package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/timour/order-saga/internal/config"
)

func main() {
	cfg := config.Load()

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("failed to build coordinator app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		if err := app.Shutdown(ctx); err != nil {
			app.zapLog.Error("error during shutdown", zap.Error(err))
		}
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		app.zapLog.Error("coordinator exited with error", zap.Error(err))
		os.Exit(1)
	}
}
