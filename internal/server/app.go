// Package server assembles the application and runs its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/api"
	"github.com/primowork/WavForce/internal/clock/system"
	"github.com/primowork/WavForce/internal/config"
	"github.com/primowork/WavForce/internal/convert"
	"github.com/primowork/WavForce/internal/extractor"
	"github.com/primowork/WavForce/internal/id/uuid"
	"github.com/primowork/WavForce/internal/metrics"
	"github.com/primowork/WavForce/internal/tool"
	"github.com/primowork/WavForce/internal/workspace"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	prober    *tool.Prober
}

// Build wires the conversion pipeline and HTTP surface from configuration.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	clock := system.New()
	idGen := uuid.New()

	workspaces := workspace.New(
		cfg.Convert.ScratchRoot,
		cfg.Convert.WorkspacePrefix,
		logger.Named("workspace"),
	)

	runner := extractor.NewRunner(extractor.RunnerConfig{
		Binary:             cfg.Tools.Extractor,
		HardTimeout:        cfg.Convert.HardTimeout(),
		StallWindow:        cfg.Convert.StallWindow(),
		KillGrace:          cfg.Convert.KillGrace(),
		MaxDownloadMB:      cfg.Convert.MaxDownloadMB,
		MaxDurationSeconds: cfg.Convert.MaxDurationSeconds,
	}, logger.Named("runner"))

	profiles := make([]convert.Profile, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		profiles[i] = convert.Profile{Name: p.Name, Args: append([]string(nil), p.Args...)}
	}
	selector := extractor.NewSelector(profiles, extractor.SelectorConfig{
		Delay:    cfg.Convert.AttemptDelay(),
		TokenTTL: cfg.Convert.SessionTokenTTL(),
	}, idGen, clock)

	resolver := extractor.NewResolver(extractor.ResolverConfig{
		PollRetries:  cfg.Convert.OutputPollRetries,
		PollInterval: cfg.Convert.OutputPollInterval(),
		MaxBytes:     cfg.Convert.MaxOutputBytes(),
	}, logger.Named("resolver"))

	classifier := convert.NewClassifier(cfg.Convert.MaxDownloadMB, cfg.Convert.MaxDurationSeconds)

	pipeline := convert.NewPipeline(
		workspaces,
		selector,
		runner,
		resolver,
		classifier,
		idGen,
		clock,
		logger.Named("pipeline"),
	)

	prober := tool.NewProber(tool.ProberConfig{
		Extractor:  cfg.Tools.Extractor,
		Transcoder: cfg.Tools.Transcoder,
		Timeout:    cfg.Tools.ProbeTimeout(),
	}, logger.Named("probe"))

	// A missing tool is reported, not fatal: the health endpoint surfaces it
	// and deployments can roll the image without taking the process down.
	if versions, err := prober.Probe(ctx); err != nil {
		logger.Warn("external tool probe failed at startup", zap.Error(err))
	} else {
		logger.Info("external tools available",
			zap.String("extractor", versions.Extractor),
			zap.String("transcoder", versions.Transcoder),
		)
	}

	apiServer := api.NewServer(pipeline, prober, clock, *cfg, logger.Named("api"))

	return &App{
		cfg:       cfg,
		logger:    logger,
		apiServer: apiServer,
		prober:    prober,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close flushes the logger.
func (a *App) Close() error {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}
