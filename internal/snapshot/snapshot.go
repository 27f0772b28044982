// Package snapshot fetches the current quote for a set of tickers.
//
// A snapshot opens one feed session, subscribes to the requested tickers and
// returns as soon as every ticker has quoted once, or when the timeout runs out.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/quote-feed/internal/connection"
	"github.com/rickgao/quote-feed/internal/events"
	"github.com/rickgao/quote-feed/internal/model"
)

// DefaultTimeout bounds a snapshot when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoTickers is returned when nothing was requested.
	ErrNoTickers = errors.New("no tickers requested")
	// ErrIncomplete is returned with the partial result when some tickers never quoted.
	ErrIncomplete = errors.New("snapshot incomplete")
)

// Config holds snapshot settings.
type Config struct {
	URL     string
	Token   string
	Tickers []string
	Timeout time.Duration
}

// collector keeps the latest quote per requested ticker.
type collector struct {
	mu      sync.Mutex
	want    map[string]struct{}
	quotes  map[string]model.Quote
	lastErr error
	done    chan struct{}
	once    sync.Once
}

func newCollector(tickers []string) *collector {
	want := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		want[t] = struct{}{}
	}
	return &collector{
		want:   want,
		quotes: make(map[string]model.Quote, len(want)),
		done:   make(chan struct{}),
	}
}

func (c *collector) handle(e events.Event) {
	switch e.Kind {
	case events.OnQuote:
		c.mu.Lock()
		if _, ok := c.want[e.Quote.Ticker]; ok {
			c.quotes[e.Quote.Ticker] = e.Quote
		}
		complete := len(c.quotes) == len(c.want)
		c.mu.Unlock()
		if complete {
			c.finish()
		}
	case events.Error:
		c.mu.Lock()
		c.lastErr = e.Err
		c.mu.Unlock()
	case events.Closed:
		c.finish()
	}
}

func (c *collector) finish() {
	c.once.Do(func() { close(c.done) })
}

// result returns the quotes in request order and the tickers still missing.
func (c *collector) result(tickers []string) ([]model.Quote, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.Quote
	var missing []string
	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		if seen[t] {
			continue
		}
		seen[t] = true
		if q, ok := c.quotes[t]; ok {
			out = append(out, q)
		} else {
			missing = append(missing, t)
		}
	}
	return out, missing, c.lastErr
}

// Fetch runs one session and returns the first quote seen for each ticker,
// in request order. When some tickers never quote it returns what it has
// together with an error wrapping ErrIncomplete.
func Fetch(ctx context.Context, cfg Config, dialer connection.Dialer, logger *slog.Logger) ([]model.Quote, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Tickers) == 0 {
		return nil, ErrNoTickers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	col := newCollector(cfg.Tickers)
	bus := events.NewBus(logger)
	if err := bus.OnAll(col.handle); err != nil {
		return nil, err
	}

	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.URL = cfg.URL
	mgrCfg.Token = cfg.Token
	mgrCfg.Tickers = cfg.Tickers
	mgr := connection.NewManager(mgrCfg, dialer, bus, logger)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(runDone)
	}()

	select {
	case <-col.done:
	case <-ctx.Done():
	case <-runDone:
	}
	cancel()
	<-runDone

	quotes, missing, lastErr := col.result(cfg.Tickers)
	logger.Debug("snapshot finished", "quotes", len(quotes), "missing", missing)

	if len(missing) > 0 {
		err := fmt.Errorf("%w: no quote for %s", ErrIncomplete, strings.Join(missing, ", "))
		if lastErr != nil {
			err = fmt.Errorf("%w (last error: %w)", err, lastErr)
		}
		return quotes, err
	}
	return quotes, nil
}
