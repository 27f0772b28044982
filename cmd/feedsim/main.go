// feedsim serves a simulated quote feed for local testing.
// Usage: go run ./cmd/feedsim --addr :8765 --token dev
//
// Then point the client at it:
//
//	go run ./cmd/quotefeed ws://localhost:8765/ dev DEBUG
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/quote-feed/internal/feedsim"
	"github.com/rickgao/quote-feed/internal/version"
)

var (
	addr string
	cfg  feedsim.Config

	rootCmd = &cobra.Command{
		Use:     "feedsim",
		Short:   "Serves a simulated quote feed over WebSocket.",
		Args:    cobra.NoArgs,
		Version: version.String(),
		RunE:    run,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&addr, "addr", ":8765", "listen address")
	flags.StringVar(&cfg.Token, "token", "", "accepted token (empty accepts any)")
	flags.DurationVar(&cfg.QuoteInterval, "interval", feedsim.DefaultQuoteInterval, "time between quote frames")
	flags.IntVar(&cfg.FinishAfter, "finish-after", 0, "send finish after this many quote frames (0 = never)")
	flags.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "random walk seed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	server := &http.Server{
		Addr:    addr,
		Handler: feedsim.NewServer(cfg, logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("feed simulator listening",
			"addr", addr,
			"interval", cfg.QuoteInterval,
			"finish_after", cfg.FinishAfter,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	server.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}
