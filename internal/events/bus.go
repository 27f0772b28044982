// Package events carries feed notifications from the Connection Manager to
// subscribers.
//
// The set of event kinds is closed. Handlers run synchronously on the
// emitting goroutine, in registration order. A panicking handler is logged
// and skipped so it cannot stop the feed.
package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-feed/internal/codec"
	"github.com/rickgao/quote-feed/internal/model"
)

// ErrUnknownKind is returned when registering for a kind outside the closed set.
var ErrUnknownKind = errors.New("unknown event kind")

// Kind names an event.
type Kind string

const (
	Connected     Kind = "connected"
	Authenticated Kind = "authenticated"
	Reconnecting  Kind = "reconnecting"
	Disconnected  Kind = "disconnected"
	Closed        Kind = "closed"
	Error         Kind = "error"
	OnQuote       Kind = "onquote"
	Pong          Kind = "pong"
	Message       Kind = "message"
)

// Kinds lists every event kind.
var Kinds = []Kind{
	Connected, Authenticated, Reconnecting, Disconnected, Closed,
	Error, OnQuote, Pong, Message,
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	switch k {
	case Connected, Authenticated, Reconnecting, Disconnected, Closed,
		Error, OnQuote, Pong, Message:
		return true
	}
	return false
}

// Event is one notification. Which payload field is set depends on Kind:
// Authenticated → SessionID, Pong → PingID, OnQuote → Quote,
// Message → Record, Error (and Disconnected, when known) → Err.
type Event struct {
	Kind      Kind
	At        time.Time
	SessionID string
	PingID    string
	Quote     model.Quote
	Record    codec.Record
	Err       error
}

// Handler consumes events.
type Handler func(Event)

// Emitter is what the Connection Manager publishes to.
type Emitter interface {
	Emit(e Event)
}

// Bus is a registry of handlers per kind.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[Kind][]Handler),
	}
}

// On appends h to the handlers of kind.
func (b *Bus) On(kind Kind, h Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %q", kind)
	}

	b.mu.Lock()
	b.handlers[kind] = append(b.handlers[kind], h)
	b.mu.Unlock()
	return nil
}

// OnAll registers h for every kind.
func (b *Bus) OnAll(h Handler) error {
	for _, k := range Kinds {
		if err := b.On(k, h); err != nil {
			return err
		}
	}
	return nil
}

// Emit calls the handlers registered for e.Kind. Handlers may call On
// or Emit themselves; the handler list is snapshotted first.
func (b *Bus) Emit(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	hs := b.handlers[e.Kind]
	b.mu.RUnlock()

	b.logger.Debug("emitting event", "event", e.Kind, "handlers", len(hs))

	for i, h := range hs {
		b.call(i, h, e)
	}
}

func (b *Bus) call(idx int, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", e.Kind,
				"handler", idx,
				"panic", r,
			)
		}
	}()
	h(e)
}
