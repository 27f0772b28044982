// Package feedsim is a local stand-in for the quote server.
//
// It speaks the server side of the feed protocol: it answers "open" with
// "init", echoes application pings as pongs, tracks "update" subscriptions
// and streams random-walk quotes for the subscribed tickers. It can end a
// session with "finish" after a fixed number of quote frames.
package feedsim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rickgao/quote-feed/internal/codec"
	"github.com/rickgao/quote-feed/internal/model"
)

// Defaults for optional server settings.
const (
	DefaultQuoteInterval = time.Second
	DefaultSpread        = "0.0002"
)

// ErrBadToken is reported when the "open" record carries the wrong token.
var ErrBadToken = errors.New("bad token")

// StartPrices seeds the random walk for well-known tickers.
// Anything else starts at 100.
var StartPrices = map[string]string{
	"XAURUB": "7500.00",
	"EURUSD": "1.0850",
	"USDJPY": "150.25",
	"gold":   "2350.00",
}

// Config configures the simulator.
type Config struct {
	Token         string        // Accepted token; empty accepts any
	QuoteInterval time.Duration // Time between quote frames
	FinishAfter   int           // Quote frames per session before "finish"; 0 never finishes
	Seed          uint64        // Random walk seed
}

// Server is an http.Handler that upgrades every request to a feed session.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	sessions atomic.Int64

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

// NewServer creates a simulator.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QuoteInterval <= 0 {
		cfg.QuoteInterval = DefaultQuoteInterval
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		prices: make(map[string]decimal.Decimal),
	}
}

// Sessions returns how many sessions were opened so far.
func (s *Server) Sessions() int64 {
	return s.sessions.Load()
}

// ServeHTTP upgrades the request and runs one session until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := &session{server: s, conn: conn, done: make(chan struct{})}
	if err := sess.handshake(); err != nil {
		s.logger.Info("handshake rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	logger := s.logger.With("sid", sess.id)
	logger.Info("session opened", "remote", r.RemoteAddr)

	go sess.readLoop(logger)
	sess.quoteLoop(logger)

	logger.Info("session closed", "quote_frames", sess.frames)
}

// nextQuote moves ticker's price one step and returns the quote record.
func (s *Server) nextQuote(ticker string, now time.Time) codec.Record {
	s.mu.Lock()
	price, ok := s.prices[ticker]
	if !ok {
		start, found := StartPrices[ticker]
		if !found {
			start = "100"
		}
		price = decimal.RequireFromString(start)
	}

	// Step by up to ±0.05% of the price.
	step := decimal.NewFromFloat(s.rng.Float64()*0.001 - 0.0005)
	price = price.Add(price.Mul(step)).Round(4)
	s.prices[ticker] = price
	s.mu.Unlock()

	ask := price.Add(decimal.RequireFromString(DefaultSpread))
	return codec.Quote(
		ticker,
		price.StringFixed(4),
		ask.StringFixed(4),
		now.UTC().Format(model.FeedTimeLayout),
	)
}

// session is the server side of one connection.
type session struct {
	server *Server
	conn   *websocket.Conn
	id     string

	writeMu sync.Mutex

	mu      sync.Mutex
	tickers []string

	done   chan struct{}
	frames int
}

func (ss *session) handshake() error {
	_, data, err := ss.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read open: %w", err)
	}

	records, err := codec.Decode(data)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("empty open frame")
	}
	open := records[0]
	if open.Type() != codec.TypeOpen {
		return fmt.Errorf("first record is %q, want open", open.Type())
	}

	token, _ := open.Field(codec.FieldSessionID)
	if ss.server.cfg.Token != "" && token != ss.server.cfg.Token {
		ss.write(codec.Record{codec.FieldType: "error", "text": "invalid token"})
		return ErrBadToken
	}

	n := ss.server.sessions.Add(1)
	ss.id = fmt.Sprintf("SIM-%d", n)
	return ss.write(codec.Init(ss.id))
}

// readLoop handles pings and subscription updates until the client goes away.
func (ss *session) readLoop(logger *slog.Logger) {
	defer close(ss.done)

	for {
		_, data, err := ss.conn.ReadMessage()
		if err != nil {
			return
		}

		records, err := codec.Decode(data)
		if err != nil {
			logger.Debug("ignoring malformed client frame", "error", err)
			continue
		}

		for _, r := range records {
			switch r.Type() {
			case codec.TypePing:
				pid, _ := r.Field(codec.FieldPingID)
				if err := ss.write(codec.Ping(ss.id, pid)); err != nil {
					return
				}
			case codec.TypeUpdate:
				if sid, _ := r.Field(codec.FieldSessionID); sid != ss.id {
					logger.Debug("update for another session", "got", sid)
					continue
				}
				tickers := r.Tickers()
				ss.mu.Lock()
				ss.tickers = tickers
				ss.mu.Unlock()
				logger.Debug("subscribed", "tickers", tickers)
			}
		}
	}
}

// quoteLoop streams quotes for the current subscription.
func (ss *session) quoteLoop(logger *slog.Logger) {
	ticker := time.NewTicker(ss.server.cfg.QuoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ss.done:
			return
		case now := <-ticker.C:
			ss.mu.Lock()
			tickers := ss.tickers
			ss.mu.Unlock()
			if len(tickers) == 0 {
				continue
			}

			records := make([]codec.Record, 0, len(tickers))
			for _, t := range tickers {
				records = append(records, ss.server.nextQuote(t, now))
			}
			if err := ss.write(records...); err != nil {
				logger.Debug("quote write failed", "error", err)
				return
			}
			ss.frames++

			if limit := ss.server.cfg.FinishAfter; limit > 0 && ss.frames >= limit {
				ss.write(codec.Finish())
				// Let the client close first so it sees the whole frame.
				select {
				case <-ss.done:
				case <-time.After(time.Second):
				}
				return
			}
		}
	}
}

func (ss *session) write(records ...codec.Record) error {
	data, err := codec.EncodeFrame(records...)
	if err != nil {
		return err
	}

	ss.writeMu.Lock()
	defer ss.writeMu.Unlock()
	return ss.conn.WriteMessage(websocket.TextMessage, data)
}
