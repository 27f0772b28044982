package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp layouts used by the feed.
const (
	// FeedTimeLayout is the inbound "utcdt" format (DD-MM-YYYY HH:MM:SS.ffffff).
	FeedTimeLayout = "02-01-2006 15:04:05.000000"

	// DisplayTimeLayout is how quotes render their time (DD.MM.YYYY HH:MM:SS).
	DisplayTimeLayout = "02.01.2006 15:04:05"
)

// feedParseLayout accepts the fractional second with any number of digits.
const feedParseLayout = "02-01-2006 15:04:05"

// Quote is a bid/ask observation for one ticker.
type Quote struct {
	Ticker string          // Instrument identifier (e.g., "EURUSD")
	Bid    decimal.Decimal // Best bid
	Ask    decimal.Decimal // Best ask
	Time   time.Time       // Observation time (UTC)
}

// NewQuote parses the wire fields of a quote record.
func NewQuote(ticker, bid, ask, utcdt string) (Quote, error) {
	b, err := decimal.NewFromString(bid)
	if err != nil {
		return Quote{}, fmt.Errorf("parse bid %q: %w", bid, err)
	}
	a, err := decimal.NewFromString(ask)
	if err != nil {
		return Quote{}, fmt.Errorf("parse ask %q: %w", ask, err)
	}
	ts, err := ParseFeedTime(utcdt)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Ticker: ticker, Bid: b, Ask: a, Time: ts}, nil
}

// ParseFeedTime parses an inbound "utcdt" value.
func ParseFeedTime(s string) (time.Time, error) {
	ts, err := time.Parse(feedParseLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse utcdt %q: %w", s, err)
	}
	return ts, nil
}

// ParseDisplayTime parses a time rendered by Quote.DisplayTime.
func ParseDisplayTime(s string) (time.Time, error) {
	ts, err := time.Parse(DisplayTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse display time %q: %w", s, err)
	}
	return ts, nil
}

// DisplayTime renders the observation time without fractional seconds.
func (q Quote) DisplayTime() string {
	return q.Time.Format(DisplayTimeLayout)
}

// Spread returns Ask - Bid.
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// String renders "TICKER, BID, ASK, DD.MM.YYYY HH:MM:SS".
func (q Quote) String() string {
	return fmt.Sprintf("%s, %s, %s, %s", q.Ticker, q.Bid.String(), q.Ask.String(), q.DisplayTime())
}
