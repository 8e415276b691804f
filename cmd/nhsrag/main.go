package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/kirillkom/nhs-clinical-assistant/internal/adapters/cli"
	"github.com/kirillkom/nhs-clinical-assistant/internal/bootstrap"
	"github.com/kirillkom/nhs-clinical-assistant/internal/config"
	"github.com/kirillkom/nhs-clinical-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logLevel := cfg.LogLevel
	if os.Getenv("LOG_LEVEL") == "" {
		logLevel = "warn"
	}
	logger := logging.NewTextLogger(os.Stderr, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := bootstrap.NewCore(cfg, logger, nil)
	if err != nil {
		fail(err)
	}

	cli.SetServices(cli.Services{
		Answers:  core.Answers,
		Catalog:  core.Catalog,
		Indexer:  core.Indexer,
		Messages: cfg.Messages,
		Version:  version,
	})
	if err := cli.Execute(ctx); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
	os.Exit(1)
}
