// gatherer maintains one persistent connection to the realtime
// endpoint, subscribes to the configured channels, and archives every
// data event into PostgreSQL.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmelnik/streamgather/internal/channel"
	"github.com/dmelnik/streamgather/internal/config"
	"github.com/dmelnik/streamgather/internal/connection"
	"github.com/dmelnik/streamgather/internal/database"
	"github.com/dmelnik/streamgather/internal/queue"
	"github.com/dmelnik/streamgather/internal/version"
	"github.com/dmelnik/streamgather/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"endpoint", cfg.Realtime.Host,
		"channels", len(cfg.Channels),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"database", cfg.Database.Postgres.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Channel registry seeded from config.
	registry := channel.NewRegistry(logger)
	for _, name := range cfg.Channels {
		registry.Add(name)
	}

	// Event queue between the connection and the writer.
	eventQueue := queue.New(queue.Config{BufferSize: cfg.Queue.BufferSize}, logger)

	eventWriter := writer.NewEventWriter(
		writer.Config{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
		},
		eventQueue.Events(),
		pool,
		logger,
	)
	if err := eventWriter.Start(ctx); err != nil {
		logger.Error("failed to start event writer", "error", err)
		os.Exit(1)
	}

	managerCfg := connection.ManagerConfig{
		Host:                   cfg.Realtime.Host,
		AppKey:                 cfg.Realtime.AppKey,
		Secure:                 cfg.Realtime.RealtimeSecure(),
		AutoReconnect:          cfg.Realtime.ReconnectEnabled(),
		MaxReconnectAttempts:   cfg.Realtime.MaxReconnectAttempts,
		MaxReconnectGapSeconds: cfg.Realtime.MaxReconnectGapSeconds,
		ActivityTimeout:        cfg.Realtime.ActivityTimeout,
		WriteTimeout:           cfg.Realtime.WriteTimeout,
		BufferSize:             cfg.Realtime.BufferSize,
	}
	manager := connection.NewManager(managerCfg, registry, eventQueue, logger)
	manager.SetStateObserver(func(old, new connection.State) {
		logger.Info("connection state changed",
			"from", old.String(),
			"to", new.String(),
		)
	})

	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("gatherer running", "instance_id", cfg.Instance.ID)

	g, gctx := errgroup.WithContext(ctx)

	// Periodic stats reporting.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				cs := manager.Stats()
				qs := eventQueue.Stats()
				ws := eventWriter.Stats()
				logger.Info("stats",
					"connection", cs.String(),
					"events_received", qs.Received,
					"events_buffered", qs.Buffer.Count,
					"rows_inserted", ws.Inserts,
					"insert_errors", ws.Errors,
				)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("runtime error", "error", err)
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	manager.Stop(shutdownCtx)
	eventQueue.Close()
	eventWriter.Stop(shutdownCtx)

	logger.Info("gatherer stopped")
}
