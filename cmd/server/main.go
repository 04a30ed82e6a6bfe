package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/rnplay/relay/internal/adapters/http"
	"github.com/rnplay/relay/internal/app"
	"github.com/rnplay/relay/internal/config"
	"github.com/rnplay/relay/internal/metrics"
	"github.com/rnplay/relay/internal/stream"
	"github.com/rnplay/relay/internal/transform"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		cfg = config.Default()
	}

	var transformer transform.Transformer = transform.Noop{}
	if cfg.Transform.Command != "" {
		transformer = transform.Command{Path: cfg.Transform.Command, Args: cfg.Transform.Args}
		log.Info().Str("command", cfg.Transform.Command).Msg("code transform enabled")
	}

	collector := metrics.NewPrometheusCollector()
	registry := app.NewRegistry()
	relay := app.NewRelay(registry, transformer, collector)
	pipeline := stream.NewPipeline(cfg.Encoder, collector)

	r := router.SetupRouter(cfg, relay, pipeline, collector)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// A port that cannot be bound is the one fatal startup error.
			log.Error().Err(err).Str("addr", addr).Msg("listener failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	pipeline.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
