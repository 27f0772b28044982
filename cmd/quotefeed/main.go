package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rickgao/quote-feed/internal/config"
	"github.com/rickgao/quote-feed/internal/connection"
	"github.com/rickgao/quote-feed/internal/events"
	"github.com/rickgao/quote-feed/internal/sink"
	"github.com/rickgao/quote-feed/internal/snapshot"
	"github.com/rickgao/quote-feed/internal/version"
)

const debugArg = "DEBUG"

var errMissingArgs = errors.New("feed URL and token are required")

var (
	configPath      string
	envFile         string
	snapshotTimeout time.Duration

	rootCmd = &cobra.Command{
		Use:     "quotefeed URL TOKEN [DEBUG]",
		Short:   "Streams real-time quotes from a WebSocket feed.",
		Args:    cobra.MaximumNArgs(3),
		Version: version.String(),
		RunE:    run,
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot URL TOKEN [TICKER...]",
		Short: "Prints the current quote for each ticker and exits.",
		RunE:  runSnapshot,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file (ignored if missing)")

	snapshotCmd.Flags().DurationVar(&snapshotTimeout, "timeout", snapshot.DefaultTimeout, "give up on tickers that have not quoted by then")
	rootCmd.AddCommand(snapshotCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, .env and positional URL TOKEN.
func loadConfig(args []string) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyArgs(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	// Config errors above print usage; runtime errors below should not.
	cmd.SilenceUsage = true
	logger := newLogger(cfg)

	logger.Info("starting quotefeed",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Feed.URL,
		"tickers", cfg.Feed.Tickers,
	)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Quotes output format: ticker, bid, ask, utcdt")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	bus := events.NewBus(logger)
	if err := registerPrinters(bus, out, logger); err != nil {
		return err
	}

	mgr := connection.NewManager(
		managerConfig(cfg),
		connection.NewDialer(clientConfig(cfg), logger),
		bus,
		logger,
	)

	var publisher *sink.Publisher
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		publisher, err = startSink(ctx, cfg.Redis, rdb, bus, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := publisher.Stop(shutdownCtx); err != nil {
				logger.Warn("redis sink stopped with losses", "error", err)
			}
		}()
	}

	var healthServer *http.Server
	if cfg.Health.Port > 0 {
		healthServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: createHealthHandler(mgr, publisher),
		}

		go func() {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	// Blocks until a finish record or shutdown.
	mgr.Run(ctx)

	logger.Info("shutting down...")

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
	}

	logger.Info("quotefeed stopped", "stats", mgr.Stats())
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	base := args
	if len(base) > 2 {
		base = base[:2]
	}
	cfg, err := loadConfig(base)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	logger := newLogger(cfg)

	tickers := cfg.Feed.Tickers
	if len(args) > 2 {
		tickers = args[2:]
	}

	quotes, err := snapshot.Fetch(cmd.Context(), snapshot.Config{
		URL:     cfg.Feed.URL,
		Token:   cfg.Feed.Token,
		Tickers: tickers,
		Timeout: snapshotTimeout,
	}, connection.NewDialer(clientConfig(cfg), logger), logger)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "-------- Market data -----------")
	for _, q := range quotes {
		fmt.Fprintln(out, q)
	}
	return err
}

// applyArgs lets positional URL TOKEN [DEBUG] override the config file.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.Feed.URL = args[0]
	}
	if len(args) > 1 {
		cfg.Feed.Token = args[1]
	}
	if len(args) > 2 && args[2] == debugArg {
		cfg.Log.Level = "debug"
	}

	if cfg.Feed.URL == "" || cfg.Feed.Token == "" {
		return errMissingArgs
	}
	return nil
}

func managerConfig(cfg *config.Config) connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                     cfg.Feed.URL,
		Token:                   cfg.Feed.Token,
		ReconnectInterval:       cfg.Connection.ReconnectInterval,
		HeartbeatInterval:       cfg.Heartbeat.Interval,
		HeartbeatTimeout:        cfg.Heartbeat.Timeout,
		EnforceHeartbeatTimeout: cfg.Heartbeat.EnforceTimeout,
		AuthTimeout:             cfg.Connection.AuthTimeout,
		Tickers:                 cfg.Feed.Tickers,
	}
}

func clientConfig(cfg *config.Config) connection.ClientConfig {
	return connection.ClientConfig{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		BufferSize:       cfg.Connection.BufferSize,
	}
}

// registerPrinters writes quotes, errors and pongs to out.
func registerPrinters(bus *events.Bus, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	handlers := []struct {
		kind events.Kind
		h    events.Handler
	}{
		{events.OnQuote, func(e events.Event) { fmt.Fprintf(out, "Quote received: %s\n", e.Quote) }},
		{events.Error, func(e events.Event) { fmt.Fprintf(out, "Error: %v\n", e.Err) }},
		{events.Pong, func(e events.Event) { fmt.Fprintf(out, "Pong received for PID: %s\n", e.PingID) }},
		{events.Authenticated, func(e events.Event) { logger.Debug("authenticated event received", "sid", e.SessionID) }},
		{events.Closed, func(events.Event) { fmt.Fprintln(out, "Session finished by server") }},
	}

	for _, h := range handlers {
		if err := bus.On(h.kind, h.h); err != nil {
			return err
		}
	}
	return nil
}

// startSink connects to Redis and starts publishing quotes from bus.
// An unreachable Redis is logged, not fatal; go-redis reconnects on demand.
func startSink(ctx context.Context, cfg config.RedisConfig, client *redis.Client, bus *events.Bus, logger *slog.Logger) (*sink.Publisher, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, quotes will be dropped until it is", "addr", cfg.Addr, "error", err)
	}

	publisher := sink.NewPublisher(sink.Config{
		ChannelPrefix: cfg.ChannelPrefix,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, client, logger)

	if err := publisher.Attach(bus); err != nil {
		return nil, err
	}
	// The loop is ended by Stop, which drains the queue first.
	if err := publisher.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return publisher, nil
}
