package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quote-feed/internal/codec"
	"github.com/rickgao/quote-feed/internal/events"
	"github.com/rickgao/quote-feed/internal/model"
)

// Reasons the receive loop hands control back to the outer loop.
var (
	errDisconnected = errors.New("receive loop: disconnected")
	errFinished     = errors.New("receive loop: finished")
)

// Manager drives one feed connection through
// connect → authenticate → serve → backoff → reconnect.
type Manager struct {
	cfg     ManagerConfig
	dialer  Dialer
	emitter events.Emitter
	logger  *slog.Logger

	session Session

	// Current transport handle, replaced on every successful connect.
	mu     sync.RWMutex
	state  State
	client Client

	reconnects atomic.Int64
	frames     atomic.Int64
	quotes     atomic.Int64
}

// NewManager creates a new Connection Manager. A nil emitter drops events.
func NewManager(cfg ManagerConfig, dialer Dialer, emitter events.Emitter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultManagerConfig()
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}

	return &Manager{
		cfg:     cfg,
		dialer:  dialer,
		emitter: emitter,
		logger:  logger,
		state:   StateIdle,
	}
}

// Run drives the lifecycle until a "finish" record arrives or ctx is done.
// Failures are reported through events only.
func (m *Manager) Run(ctx context.Context) {
	m.session.start()

	stop := context.AfterFunc(ctx, func() {
		m.session.stop()
		m.closeClient()
	})
	defer stop()

	m.logger.Info("feed client starting", "url", m.cfg.URL)

	for m.active(ctx) {
		m.connectAndServe(ctx)

		if !m.active(ctx) {
			break
		}

		m.setState(StateBackoff)
		m.logger.Debug("reconnecting after delay", "delay", m.cfg.ReconnectInterval)

		timer := time.NewTimer(m.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}

		if !m.active(ctx) {
			break
		}

		m.reconnects.Add(1)
		m.emit(events.Event{Kind: events.Reconnecting})
	}

	m.setState(StateIdle)
	m.logger.Info("feed client stopped")
}

// Subscribe asks the server for quotes on tickers. Without a session it
// does nothing and returns ErrNoSession.
func (m *Manager) Subscribe(tickers []string) error {
	sid, ok := m.session.SessionID()
	if !ok {
		m.logger.Debug("cannot subscribe: no session", "tickers", tickers)
		return ErrNoSession
	}

	client := m.currentClient()
	if client == nil {
		m.logger.Debug("cannot subscribe: not connected", "tickers", tickers)
		return ErrNotConnected
	}

	data, err := codec.Encode(codec.Update(sid, tickers))
	if err != nil {
		return err
	}

	if err := client.Send(data); err != nil {
		err = fmt.Errorf("%w: subscribe: %w", ErrSend, err)
		m.emit(events.Event{Kind: events.Error, Err: err})
		return err
	}

	m.logger.Debug("subscribed to tickers", "tickers", tickers, "sid", sid)
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session exposes the shared session state for reading.
func (m *Manager) Session() *Session {
	return &m.session
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	sid, _ := m.session.SessionID()

	m.mu.RLock()
	state := m.state
	connected := m.client != nil && m.client.IsConnected()
	m.mu.RUnlock()

	return Stats{
		State:            state,
		Running:          m.session.Running(),
		Connected:        connected,
		SessionID:        sid,
		HeartbeatSeq:     m.session.HeartbeatSeq(),
		Reconnects:       m.reconnects.Load(),
		FramesReceived:   m.frames.Load(),
		QuotesDispatched: m.quotes.Load(),
	}
}

// connectAndServe runs one pass from Connecting until the connection ends.
func (m *Manager) connectAndServe(ctx context.Context) {
	logger := m.logger.With("attempt", uuid.NewString())

	m.session.reset()
	m.setState(StateConnecting)

	client, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		if !m.active(ctx) {
			return
		}
		logger.Warn("connection failed", "url", m.cfg.URL, "error", err)
		m.emit(events.Event{Kind: events.Error, Err: fmt.Errorf("%w: %w", ErrConnect, err)})
		return
	}
	defer m.releaseClient(client)

	m.setClient(client)
	if !m.active(ctx) {
		return
	}

	logger.Info("connected", "url", m.cfg.URL)
	m.emit(events.Event{Kind: events.Connected})

	m.setState(StateAuthenticating)
	sid, rest, err := m.authenticate(ctx, client)
	if err != nil {
		m.session.clearSessionID()
		if !m.active(ctx) {
			return
		}
		logger.Warn("authentication failed", "error", err)
		m.emit(events.Event{Kind: events.Error, Err: err})
		return
	}

	logger.Info("authenticated", "sid", sid)
	m.emit(events.Event{Kind: events.Authenticated, SessionID: sid})

	// Subscribe before the loops start so the update precedes the first ping.
	if len(m.cfg.Tickers) > 0 {
		if err := m.Subscribe(m.cfg.Tickers); err != nil {
			logger.Warn("auto-subscribe failed", "tickers", m.cfg.Tickers, "error", err)
		}
	}

	// Records that followed "init" in the handshake frame.
	if len(rest.records) > 0 && m.dispatchRecords(client, rest.records, rest.receivedAt, logger) {
		return
	}

	if !m.active(ctx) {
		return
	}

	m.setState(StateServing)
	m.serve(ctx, client, logger)
}

// pending holds the records of the handshake frame that came after "init".
type pending struct {
	records    []codec.Record
	receivedAt time.Time
}

// authenticate sends the "open" record and waits for one response frame.
// Records before the accepted "init" are dropped; records after it are
// returned so they can be dispatched once the session is set up.
func (m *Manager) authenticate(ctx context.Context, client Client) (string, pending, error) {
	data, err := codec.Encode(codec.Open(m.cfg.Token))
	if err != nil {
		return "", pending{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if err := client.Send(data); err != nil {
		return "", pending{}, fmt.Errorf("%w: %w: %w", ErrAuth, ErrSend, err)
	}

	timer := time.NewTimer(m.cfg.AuthTimeout)
	defer timer.Stop()

	var frame Frame
	select {
	case <-ctx.Done():
		return "", pending{}, fmt.Errorf("%w: %w", ErrAuth, ctx.Err())
	case <-timer.C:
		return "", pending{}, fmt.Errorf("%w: no response within %s", ErrAuth, m.cfg.AuthTimeout)
	case f, ok := <-client.Messages():
		if !ok {
			return "", pending{}, fmt.Errorf("%w: %w", ErrAuth, closeCause(client))
		}
		frame = f
	}

	m.frames.Add(1)
	records, err := codec.Decode(frame.Data)
	if err != nil {
		return "", pending{}, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	for i, r := range records {
		if r.Type() != codec.TypeInit {
			continue
		}
		if sid, ok := r.Field(codec.FieldSessionID); ok && sid != "" {
			m.session.setSessionID(sid)
			return sid, pending{records: records[i+1:], receivedAt: frame.ReceivedAt}, nil
		}
	}

	return "", pending{}, fmt.Errorf("%w: no init record in response", ErrAuth)
}

// serve runs the heartbeat and receive loops until the receive loop ends.
func (m *Manager) serve(ctx context.Context, client Client, logger *slog.Logger) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.heartbeatLoop(gctx, client, logger)
		return nil
	})
	g.Go(func() error {
		return m.receiveLoop(gctx, client, logger)
	})

	err := g.Wait()
	logger.Debug("serve loops exited", "reason", err)
}

// heartbeatLoop pings while a session exists. A failed send ends it quietly;
// the receive loop reports the disconnect.
func (m *Manager) heartbeatLoop(ctx context.Context, client Client, logger *slog.Logger) {
	for m.session.Running() {
		if sid, ok := m.session.SessionID(); ok {
			now := time.Now()

			if m.cfg.EnforceHeartbeatTimeout && m.session.pongOverdue(now, m.cfg.HeartbeatTimeout) {
				logger.Warn("pong overdue, dropping connection",
					"last_seq", m.session.HeartbeatSeq(),
					"timeout", m.cfg.HeartbeatTimeout,
				)
				client.Close()
				return
			}

			seq := m.session.nextHeartbeat(now)
			data, err := codec.Encode(codec.Ping(sid, strconv.FormatInt(seq, 10)))
			if err != nil {
				logger.Debug("encode ping failed", "error", err)
				return
			}
			if err := client.Send(data); err != nil {
				logger.Debug("heartbeat send failed", "seq", seq, "error", err)
				return
			}
			logger.Debug("sent ping", "seq", seq)
		}

		timer := time.NewTimer(m.cfg.HeartbeatInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// receiveLoop dispatches inbound frames in arrival order. It always returns
// a non-nil error so the heartbeat loop is cancelled with it.
func (m *Manager) receiveLoop(ctx context.Context, client Client, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-client.Messages():
			if !ok {
				cause := closeCause(client)
				m.session.clearSessionID()
				if !m.active(ctx) {
					return errFinished
				}
				logger.Warn("connection closed", "error", cause)
				m.emit(events.Event{Kind: events.Disconnected, Err: cause})
				return errDisconnected
			}

			m.frames.Add(1)
			if m.dispatchFrame(client, frame, logger) {
				return errFinished
			}
		}
	}
}

// dispatchFrame handles each record of one frame in order.
// It reports whether a terminal record was seen.
func (m *Manager) dispatchFrame(client Client, frame Frame, logger *slog.Logger) bool {
	records, err := codec.Decode(frame.Data)
	if err != nil {
		logger.Warn("skipping malformed frame", "error", err, "bytes", len(frame.Data))
		m.emit(events.Event{Kind: events.Error, Err: err})
		return false
	}

	return m.dispatchRecords(client, records, frame.ReceivedAt, logger)
}

// dispatchRecords emits events for records in order and reports whether
// a terminal record was seen.
func (m *Manager) dispatchRecords(client Client, records []codec.Record, receivedAt time.Time, logger *slog.Logger) bool {
	for _, r := range records {
		switch r.Type() {
		case codec.TypePing:
			if pid, ok := r.Field(codec.FieldPingID); ok {
				m.session.recordPong(receivedAt)
				m.emit(events.Event{Kind: events.Pong, PingID: pid})
				continue
			}

		case codec.TypeFinish:
			logger.Info("received finish, closing connection")
			m.emit(events.Event{Kind: events.Closed})
			m.session.stop()
			m.session.clearSessionID()
			client.Close()
			return true

		case codec.TypeQuote:
			q, err := quoteFromRecord(r)
			if err != nil {
				logger.Warn("skipping bad quote", "error", err)
				m.emit(events.Event{Kind: events.Error, Err: err})
				continue
			}
			m.quotes.Add(1)
			m.emit(events.Event{Kind: events.OnQuote, Quote: q})
			continue
		}

		m.emit(events.Event{Kind: events.Message, Record: r})
	}

	return false
}

// quoteFromRecord builds a Quote from a "quote" record.
func quoteFromRecord(r codec.Record) (model.Quote, error) {
	fields := [4]string{codec.FieldTicker, codec.FieldBid, codec.FieldAsk, codec.FieldTime}
	var vals [4]string
	for i, f := range fields {
		v, ok := r.Field(f)
		if !ok {
			return model.Quote{}, fmt.Errorf("quote record missing %q", f)
		}
		vals[i] = v
	}

	q, err := model.NewQuote(vals[0], vals[1], vals[2], vals[3])
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", vals[0], err)
	}
	return q, nil
}

// closeCause returns the read error that closed client, or ErrConnectionClosed.
func closeCause(client Client) error {
	select {
	case err := <-client.Errors():
		if err != nil {
			return err
		}
	default:
	}
	return ErrConnectionClosed
}

// active reports whether the lifecycle should continue. The running flag is
// cleared asynchronously on cancel, so ctx is checked as well.
func (m *Manager) active(ctx context.Context) bool {
	return ctx.Err() == nil && m.session.Running()
}

func (m *Manager) emit(e events.Event) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(e)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("state transition", "from", prev, "to", s)
	}
}

func (m *Manager) setClient(c Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

func (m *Manager) currentClient() Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// releaseClient closes c and forgets it if it is still the current handle.
func (m *Manager) releaseClient(c Client) {
	c.Close()

	m.mu.Lock()
	if m.client == c {
		m.client = nil
	}
	m.mu.Unlock()
}

func (m *Manager) closeClient() {
	if c := m.currentClient(); c != nil {
		c.Close()
	}
}
