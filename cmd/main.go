package main

import (
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/tcp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every defer run before the process stops.
func run() error {
	// 1. Configuration & Logger
	// A missing .env file is fine, the environment alone is enough
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Supervision, registry and sessions
	sup := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry(log, sup,
		config.RegistryShards, config.MailboxCapacity, config.DeliveryTimeout)
	driver := runtime.NewSessionDriver(log, registry, config.DeliveryTimeout)
	sup.Add(workers.NewMailboxMonitorWorker(log, registry, config.MetricInterval))

	// 4. TCP server
	server := tcp.NewServer(log, config.Address(), driver, config.MaxLineLength, config.ShutdownTimeout)
	if err := server.Listen(); err != nil {
		return err
	}

	// 5. Run until a signal or a fatal server error
	// Whatever ends the server also stops the supervised workers
	var g errgroup.Group
	g.Go(func() error {
		defer sup.Stop()
		return server.Serve(ctx)
	})
	g.Go(func() error {
		sup.Run(ctx)
		return nil
	})
	err := g.Wait()

	// 6. Final Cleanup
	log.Info("Shutting down gracefully...")
	registry.Close()
	sup.Wait()
	if err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
