// Package main wires together the conversion service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/config"
	"github.com/primowork/WavForce/internal/logging"
	"github.com/primowork/WavForce/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg, logger)
	if err != nil {
		logger.Error("build application failed", zap.Error(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("application exited with error", zap.Error(err))
		os.Exit(1)
	}
}
