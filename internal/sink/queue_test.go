package sink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rickgao/quote-feed/internal/model"
)

func tickers(qs []model.Quote) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Ticker
	}
	return out
}

func TestQueue_FIFOAcrossGrowth(t *testing.T) {
	b := newQueue(2, 100)

	b.Push(model.Quote{Ticker: "a"})
	b.Push(model.Quote{Ticker: "b"})
	require.Equal(t, []string{"a"}, tickers(b.Drain(1)))

	// Wraps the ring, then forces a grow with head != 0.
	b.Push(model.Quote{Ticker: "c"})
	b.Push(model.Quote{Ticker: "d"})
	b.Push(model.Quote{Ticker: "e"})

	require.Equal(t, 4, b.Len())
	require.Equal(t, []string{"b", "c", "d", "e"}, tickers(b.Drain(0)))
	require.Nil(t, b.Drain(0))
}

func TestQueue_DropsOldestAtLimit(t *testing.T) {
	b := newQueue(1, 3)

	for _, tk := range []string{"a", "b", "c", "d", "e"} {
		require.True(t, b.Push(model.Quote{Ticker: tk}))
	}

	require.EqualValues(t, 2, b.Dropped())
	require.Equal(t, []string{"c", "d", "e"}, tickers(b.Drain(0)))
}

func TestQueue_ReadySignal(t *testing.T) {
	b := newQueue(4, 4)

	select {
	case <-b.Ready():
		t.Fatal("empty queue should not be ready")
	default:
	}

	b.Push(model.Quote{Ticker: "a"})
	b.Push(model.Quote{Ticker: "b"})

	select {
	case <-b.Ready():
	default:
		t.Fatal("expected ready signal after push")
	}
}

func TestQueue_Close(t *testing.T) {
	b := newQueue(4, 4)
	b.Push(model.Quote{Ticker: "a"})
	b.Close()

	require.False(t, b.Push(model.Quote{Ticker: "b"}))
	require.Equal(t, []string{"a"}, tickers(b.Drain(0)))
}
