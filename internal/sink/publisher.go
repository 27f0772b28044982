package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rickgao/quote-feed/internal/events"
	"github.com/rickgao/quote-feed/internal/model"
)

// Defaults for optional publisher settings.
const (
	DefaultChannelPrefix = "quotes."
	DefaultBatchSize     = 100
	DefaultFlushInterval = 100 * time.Millisecond
	DefaultQueueLimit    = 10000
)

// ErrPublish wraps failures talking to Redis.
var ErrPublish = errors.New("publish quotes")

// Config holds publisher settings. Zero values take the defaults above.
type Config struct {
	ChannelPrefix string
	BatchSize     int
	FlushInterval time.Duration
	QueueLimit    int
}

// Payload is the JSON document published for each quote.
type Payload struct {
	Ticker string          `json:"ticker"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	UTCDT  string          `json:"utcdt"`
}

// NewPayload converts a quote to its published form.
func NewPayload(q model.Quote) Payload {
	return Payload{
		Ticker: q.Ticker,
		Bid:    q.Bid,
		Ask:    q.Ask,
		UTCDT:  q.Time.Format(model.FeedTimeLayout),
	}
}

// Stats contains publisher counters.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Batches   int64 `json:"batches"`
	Queued    int   `json:"queued"`
}

// Publisher fans quotes out to Redis pub/sub, one channel per ticker.
// Quotes are queued by the event handler and published in pipelined
// batches from a separate goroutine, so a slow Redis never stalls dispatch.
type Publisher struct {
	cfg    Config
	client redis.UniversalClient
	logger *slog.Logger

	queue *queue

	cancel   context.CancelFunc
	stopping chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewPublisher creates a Publisher. Call Start before quotes arrive.
func NewPublisher(cfg Config, client redis.UniversalClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}

	return &Publisher{
		cfg:      cfg,
		client:   client,
		logger:   logger.With("component", "redis_sink"),
		queue:    newQueue(cfg.BatchSize, cfg.QueueLimit),
		stopping: make(chan struct{}),
	}
}

// Channel returns the pub/sub channel for ticker.
func (p *Publisher) Channel(ticker string) string {
	return p.cfg.ChannelPrefix + ticker
}

// Attach registers the publisher for quote events on bus.
func (p *Publisher) Attach(bus *events.Bus) error {
	return bus.On(events.OnQuote, p.Handle)
}

// Handle queues the quote carried by an onquote event. Other kinds are ignored.
func (p *Publisher) Handle(e events.Event) {
	if e.Kind != events.OnQuote {
		return
	}
	if !p.queue.Push(e.Quote) {
		p.logger.Debug("sink stopped, quote not queued", "ticker", e.Quote.Ticker)
	}
}

// Start begins the publish loop.
func (p *Publisher) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.publishLoop(ctx)

	p.logger.Info("redis sink started",
		"channel_prefix", p.cfg.ChannelPrefix,
		"batch_size", p.cfg.BatchSize,
	)
	return nil
}

// Stop ends the publish loop after its current batch, then publishes
// whatever is still queued using ctx. It returns an error wrapping
// ErrPublish when queued quotes could not be published.
func (p *Publisher) Stop(ctx context.Context) error {
	p.queue.Close()
	p.stopOnce.Do(func() { close(p.stopping) })
	if p.cancel != nil {
		defer p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("redis sink stop timed out", "queued", p.queue.Len())
		return fmt.Errorf("%w: stop: %w", ErrPublish, ctx.Err())
	}

	lost := 0
	for batch := p.queue.Drain(p.cfg.BatchSize); len(batch) > 0; batch = p.queue.Drain(p.cfg.BatchSize) {
		if err := p.Publish(ctx, batch); err != nil {
			lost += len(batch)
		}
	}

	stats := p.Stats()
	p.logger.Info("redis sink stopped",
		"published", stats.Published,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	if lost > 0 {
		return fmt.Errorf("%w: %d queued quotes lost on stop", ErrPublish, lost)
	}
	return nil
}

// Publish sends quotes in one pipeline.
func (p *Publisher) Publish(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	start := time.Now()
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, q := range quotes {
			data, err := json.Marshal(NewPayload(q))
			if err != nil {
				return err
			}
			pipe.Publish(ctx, p.Channel(q.Ticker), data)
		}
		return nil
	})

	p.mu.Lock()
	p.stats.Batches++
	if err != nil {
		p.stats.Failed += int64(len(quotes))
	} else {
		p.stats.Published += int64(len(quotes))
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("publish failed", "quotes", len(quotes), "error", err)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	p.logger.Debug("published quotes", "quotes", len(quotes), "duration", time.Since(start))
	return nil
}

// Stats returns current counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	p.mu.Unlock()

	s.Dropped = p.queue.Dropped()
	s.Queued = p.queue.Len()
	return s
}

func (p *Publisher) publishLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopping:
			return
		case <-p.queue.Ready():
		case <-ticker.C:
		}

		p.flush(ctx)
	}
}

// flush publishes queued batches until the queue is empty or the publisher
// is stopping. Errors are counted and logged; quotes are fire-and-forget.
func (p *Publisher) flush(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-p.stopping:
			return
		default:
		}

		batch := p.queue.Drain(p.cfg.BatchSize)
		if len(batch) == 0 {
			return
		}
		p.Publish(ctx, batch)
	}
}
