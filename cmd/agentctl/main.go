package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-agent/backend/internal/cli"
	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/logger"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = "warn"
	logConfig.JSON = false
	log := logger.New(logConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRoot(cfg, log).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
