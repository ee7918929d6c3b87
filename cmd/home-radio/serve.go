package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"home-radio/internal/auth"
	"home-radio/internal/broadcast"
	"home-radio/internal/catalog"
	"home-radio/internal/config"
	"home-radio/internal/importer"
	"home-radio/internal/library"
	"home-radio/internal/metrics"
	"home-radio/internal/server"
	"home-radio/internal/stream"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the station over HTTP (the default command).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(parent context.Context, flags *globalFlags) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := newLogger(flags)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	audioRoot, err := config.ResolveAudioRoot()
	if err != nil {
		return fmt.Errorf("resolve audio root: %w", err)
	}

	listenAddr := config.ListenAddr()
	if err := config.ValidateListenAddr(listenAddr, config.AllowRemote()); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}

	station, err := config.ResolveStation()
	if err != nil {
		return fmt.Errorf("resolve station: %w", err)
	}
	defaultMode, err := stream.ParseMode(station.DefaultMode)
	if err != nil {
		return err
	}

	debounce := config.RefreshDebounce()

	lib, err := library.New(audioRoot, debounce, logger)
	if err != nil {
		return fmt.Errorf("initialise library: %w", err)
	}
	defer func() {
		if err := lib.Close(); err != nil {
			logger.Warn("error closing library", zap.Error(err))
		}
	}()

	tokenFile, tokensEnabled, err := config.ResolveTokenFile()
	if err != nil {
		return fmt.Errorf("resolve token file: %w", err)
	}

	var validator server.TokenValidator
	if tokensEnabled {
		tokenStore, err := auth.NewTokenStore(tokenFile, debounce, logger)
		if err != nil {
			return fmt.Errorf("initialise token store: %w", err)
		}
		defer func() {
			if err := tokenStore.Close(); err != nil {
				logger.Warn("error closing token store", zap.Error(err))
			}
		}()
		validator = tokenStore
	}

	m := metrics.New()
	m.TrackGauge(lib.Len)

	cat := catalog.New(audioRoot)
	state := broadcast.NewState(nil)
	handler := server.New(server.Options{
		Catalog:    cat,
		Index:      lib,
		Controller: broadcast.NewController(cat, state, nil, logger),
		Validator:  validator,
		Importer: importer.New(audioRoot, importer.Options{
			Timeout:  station.ImportTimeout,
			MaxBytes: station.ImportMaxBytes,
		}, logger),
		Metrics: m,
		Station: server.Station{
			Name:        station.Name,
			Genre:       station.Genre,
			Description: station.Description,
			DefaultMode: defaultMode,
			Session: stream.Options{
				Bitrate:     station.AssumedBitrate,
				ChunkSize:   station.ChunkSize,
				Pacing:      station.Pacing,
				PacingBurst: station.PacingBurst,
			},
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("graceful shutdown error", zap.Error(err))
			// Listeners never finish on their own.
			_ = httpServer.Close()
		}
	}()

	logger.Info("listening",
		zap.String("addr", listenAddr),
		zap.String("audio_dir", audioRoot),
		zap.Stringer("default_mode", defaultMode),
		zap.Int("assumed_bitrate", station.AssumedBitrate),
		zap.Bool("tokens", tokensEnabled))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
