package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/cmd/flags"
	"github.com/ruteri/setup-mpc-server/common"
	"github.com/ruteri/setup-mpc-server/config"
	"github.com/ruteri/setup-mpc-server/httpserver"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/ruteri/setup-mpc-server/metrics"
	"github.com/ruteri/setup-mpc-server/storage"
	"github.com/ruteri/setup-mpc-server/transcript"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "ceremony-server",
		Usage:  "Coordinate a time-boxed sequential MPC setup ceremony",
		Flags:  append(append(append([]cli.Flag{}, flags.LogFlags...), flags.ServerFlags...), flags.CeremonyFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.CeremonyConfig(cCtx)
	if err != nil {
		logger.Error("Invalid ceremony configuration", "err", err)
		return err
	}

	var factory interfaces.StorageBackendFactory = storage.NewStorageBackendFactory(logger)
	if certFile := cCtx.String(flags.VaultClientCertFlag.Name); certFile != "" {
		keyFile := cCtx.String(flags.VaultClientKeyFlag.Name)
		factory = factory.WithTLSAuth(func() (tls.Certificate, error) {
			return tls.LoadX509KeyPair(certFile, keyFile)
		})
	}

	artifacts, err := artifactBackend(cfg, factory)
	if err != nil {
		logger.Error("Failed to create artifact backend", "err", err)
		return err
	}

	store, err := transcript.Open(cfg.StorePath, artifacts, nil, logger)
	if err != nil {
		logger.Error("Failed to open transcript store", "err", err, "path", cfg.StorePath)
		return err
	}
	logger.Info("Transcript store opened", "path", cfg.StorePath, "artifacts", store.Location())

	serverCfg := flags.ConfigureServer(cCtx, logger)

	var (
		metricsSrv *metrics.MetricsServer
		opts       []ceremony.Option
	)
	if serverCfg.MetricsAddr != "" {
		metricsSrv, err = metrics.New(common.PackageName, serverCfg.MetricsAddr)
		if err != nil {
			logger.Error("Failed to create metrics server", "err", err)
			return err
		}
		observer, err := metricsSrv.NewCeremonyMetrics()
		if err != nil {
			logger.Error("Failed to register ceremony metrics", "err", err)
			return err
		}
		opts = append(opts, ceremony.WithObserver(observer))
	}

	coord, err := ceremony.New(ceremony.Config{
		Capacity:        cfg.Capacity,
		ScheduledStart:  cfg.ScheduledStart(time.Now()),
		DemoRoleIndices: cfg.YouIndices,
		TurnTimeout:     cfg.TurnTimeout,
	}, store, logger, opts...)
	if err != nil {
		logger.Error("Failed to create coordinator", "err", err)
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = coord.Start(startCtx)
	cancel()
	if err != nil {
		if errors.Is(err, ceremony.ErrCorruptState) {
			logger.Error("Transcript store is corrupt, refusing to serve", "err", err, "path", cfg.StorePath)
		} else {
			logger.Error("Failed to start coordinator", "err", err)
		}
		closeStore(store, logger)
		return err
	}

	handler := httpserver.NewHandler(coord, serverCfg.MaxArtifactSize, logger)
	server, err := httpserver.New(serverCfg, handler, metricsSrv)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		coord.Stop()
		closeStore(store, logger)
		return err
	}
	server.RunInBackground()

	go func() {
		if err := coord.Wait(context.Background()); err == nil {
			snap := coord.CurrentState()
			logger.Info("Ceremony complete",
				"id", snap.ID,
				"complete", snap.Counts[interfaces.StateComplete],
				"invalid", snap.Counts[interfaces.StateInvalid])
		}
	}()

	// Wait for termination signal
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop", "listenAddress", serverCfg.ListenAddr)
	sig := <-exit
	signal.Stop(exit)
	logger.Info("Shutdown signal received", "signal", sig.String())

	// Stop first so no new transition is accepted while requests drain
	coord.Stop()
	server.Shutdown()
	closeStore(store, logger)

	logger.Info("Server shutdown complete")
	return nil
}

// artifactBackend builds the backend artifacts are stored in. Without configured stores
// artifacts live next to the manifest.
func artifactBackend(cfg config.Ceremony, factory interfaces.StorageBackendFactory) (interfaces.StorageBackend, error) {
	uris := cfg.ArtifactStores
	if len(uris) == 0 {
		abs, err := filepath.Abs(filepath.Join(cfg.StorePath, "artifacts"))
		if err != nil {
			return nil, err
		}
		uris = []string{"file://" + abs}
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid artifact store %q: %w", uri, err)
		}
		locations = append(locations, loc)
	}

	if len(locations) == 1 {
		return factory.StorageBackendFor(locations[0])
	}
	return factory.CreateMultiBackend(locations)
}

func closeStore(store *transcript.Store, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Error("Failed to close transcript store", "err", err)
	}
}
