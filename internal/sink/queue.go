package sink

import (
	"sync"

	"github.com/rickgao/quote-feed/internal/model"
)

// queue is a FIFO ring between the dispatch goroutine and the publish loop.
// It doubles its capacity when full, up to limit; past that the oldest quote
// is dropped so Push never blocks event dispatch.
type queue struct {
	mu    sync.Mutex
	buf   []model.Quote
	head  int
	count int
	limit int

	closed bool
	ready  chan struct{}

	pushed  int64
	dropped int64
}

func newQueue(initial, limit int) *queue {
	if initial < 1 {
		initial = 1
	}
	if limit < initial {
		limit = initial
	}
	return &queue{
		buf:   make([]model.Quote, initial),
		limit: limit,
		ready: make(chan struct{}, 1),
	}
}

// Push appends q. It returns false once the queue is closed.
func (b *queue) Push(q model.Quote) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	if b.count == len(b.buf) {
		if len(b.buf) < b.limit {
			b.grow()
		} else {
			b.buf[b.head] = model.Quote{}
			b.head = (b.head + 1) % len(b.buf)
			b.count--
			b.dropped++
		}
	}

	b.buf[(b.head+b.count)%len(b.buf)] = q
	b.count++
	b.pushed++
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled after every Push.
func (b *queue) Ready() <-chan struct{} {
	return b.ready
}

// Drain removes up to max quotes (all when max <= 0) in FIFO order.
func (b *queue) Drain(max int) []model.Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	out := make([]model.Quote, n)
	for i := range out {
		out[i] = b.buf[b.head]
		b.buf[b.head] = model.Quote{}
		b.head = (b.head + 1) % len(b.buf)
	}
	b.count -= n
	return out
}

// Close stops further pushes. Queued quotes can still be drained.
func (b *queue) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *queue) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *queue) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// grow doubles the ring, capped at limit. Caller holds mu.
func (b *queue) grow() {
	size := len(b.buf) * 2
	if size > b.limit {
		size = b.limit
	}

	next := make([]model.Quote, size)
	n := copy(next, b.buf[b.head:])
	copy(next[n:], b.buf[:b.head])

	b.buf = next
	b.head = 0
}
