package feedsim

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rickgao/quote-feed/internal/connection"
	"github.com/rickgao/quote-feed/internal/events"
)

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) add(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) ofKind(k events.Kind) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func startSim(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	sim := NewServer(cfg, nil)
	ts := httptest.NewServer(sim)
	t.Cleanup(ts.Close)
	return sim, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newManager(t *testing.T, url, token string, tickers []string) (*connection.Manager, *collector) {
	t.Helper()
	bus := events.NewBus(nil)
	col := &collector{}
	require.NoError(t, bus.OnAll(col.add))

	mgr := connection.NewManager(connection.ManagerConfig{
		URL:               url,
		Token:             token,
		ReconnectInterval: 20 * time.Millisecond,
		HeartbeatInterval: 5 * time.Millisecond,
		AuthTimeout:       time.Second,
		Tickers:           tickers,
	}, connection.NewDialer(connection.DefaultClientConfig(), nil), bus, nil)

	return mgr, col
}

func TestServer_SessionUntilFinish(t *testing.T) {
	sim, url := startSim(t, Config{
		Token:         "tok",
		QuoteInterval: 20 * time.Millisecond,
		FinishAfter:   3,
		Seed:          42,
	})

	mgr, col := newManager(t, url, "tok", []string{"EURUSD", "gold"})

	done := make(chan struct{})
	go func() {
		mgr.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after finish")
	}

	auth := col.ofKind(events.Authenticated)
	require.Len(t, auth, 1)
	require.Equal(t, "SIM-1", auth[0].SessionID)

	quotes := col.ofKind(events.OnQuote)
	require.Len(t, quotes, 6)
	for i, q := range quotes {
		want := []string{"EURUSD", "gold"}[i%2]
		require.Equal(t, want, q.Quote.Ticker)
		require.True(t, q.Quote.Ask.GreaterThan(q.Quote.Bid), "ask should exceed bid: %s", q.Quote)
		require.False(t, q.Quote.Time.IsZero())
	}

	require.Len(t, col.ofKind(events.Closed), 1)
	require.NotEmpty(t, col.ofKind(events.Pong))
	require.Empty(t, col.ofKind(events.Error))
	require.EqualValues(t, 1, sim.Sessions())
}

func TestServer_RejectsBadToken(t *testing.T) {
	sim, url := startSim(t, Config{Token: "tok", QuoteInterval: 10 * time.Millisecond})

	mgr, col := newManager(t, url, "wrong", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for len(col.ofKind(events.Error)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	errs := col.ofKind(events.Error)
	require.NotEmpty(t, errs)
	require.True(t, errors.Is(errs[0].Err, connection.ErrAuth), "got %v", errs[0].Err)
	require.Empty(t, col.ofKind(events.Authenticated))
	require.Zero(t, sim.Sessions())
}

func TestServer_NextQuoteWalk(t *testing.T) {
	sim := NewServer(Config{Seed: 1}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first := sim.nextQuote("EURUSD", now)
	bid, _ := first.Field("bid")
	require.True(t, strings.HasPrefix(bid, "1.08"), "bid %s should start near 1.0850", bid)

	utcdt, _ := first.Field("utcdt")
	require.Equal(t, "01-01-2024 12:00:00.000000", utcdt)

	other := sim.nextQuote("NEW", now)
	bid, _ = other.Field("bid")
	require.True(t, strings.HasPrefix(bid, "99.") || strings.HasPrefix(bid, "100."), "bid %s should start near 100", bid)
}
