// streamtest connects to the realtime endpoint and prints incoming
// events to the console. No database required.
// Usage: go run ./cmd/streamtest --config configs/gatherer.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmelnik/streamgather/internal/channel"
	"github.com/dmelnik/streamgather/internal/config"
	"github.com/dmelnik/streamgather/internal/connection"
	"github.com/dmelnik/streamgather/internal/protocol"
	"github.com/dmelnik/streamgather/internal/queue"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	registry := channel.NewRegistry(logger)
	for _, name := range cfg.Channels {
		registry.Add(name)
	}

	eventQueue := queue.New(queue.Config{BufferSize: cfg.Queue.BufferSize}, logger)

	manager := connection.NewManager(connection.ManagerConfig{
		Host:                   cfg.Realtime.Host,
		AppKey:                 cfg.Realtime.AppKey,
		Secure:                 cfg.Realtime.RealtimeSecure(),
		AutoReconnect:          cfg.Realtime.ReconnectEnabled(),
		MaxReconnectAttempts:   cfg.Realtime.MaxReconnectAttempts,
		MaxReconnectGapSeconds: cfg.Realtime.MaxReconnectGapSeconds,
		ActivityTimeout:        cfg.Realtime.ActivityTimeout,
		WriteTimeout:           cfg.Realtime.WriteTimeout,
		BufferSize:             cfg.Realtime.BufferSize,
	}, registry, eventQueue, logger)

	manager.SetStateObserver(func(old, new connection.State) {
		fmt.Printf("[STATE] %s -> %s\n", old, new)
	})
	manager.SetErrorHandler(func(desc protocol.ErrorDescriptor) {
		fmt.Printf("[ERROR] code=%d message=%s\n", desc.Code, desc.Message)
	})

	logger.Info("starting connection manager", "endpoint", cfg.Realtime.Host)
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	go printEvents(ctx, eventQueue.Events(), *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs := manager.Stats()
				qs := eventQueue.Stats()
				logger.Info("stats",
					"connection", cs.String(),
					"events_received", qs.Received,
					"events_buffered", qs.Buffer.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	manager.Stop(shutdownCtx)
	eventQueue.Close()

	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, buf *queue.Buffer[queue.Event], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev, ok := buf.Pop()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(ev.Payload, "", "  ")
				fmt.Printf("[EVENT] channel=%s event=%s\n%s\n", ev.Channel, ev.Name, data)
			} else {
				fmt.Printf("[EVENT] channel=%s event=%s received=%s\n",
					ev.Channel, ev.Name, ev.ReceivedAt.Format(time.RFC3339))
			}
		}
	}
}
