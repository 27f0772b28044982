package config

import (
	"time"

	"github.com/rickgao/quote-feed/internal/sink"
)

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultAuthTimeout       = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultBufferSize        = 1000
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatTimeout  = 5 * time.Second
	DefaultLogLevel          = "info"
)

// DefaultTickers are subscribed when the config names none.
var DefaultTickers = []string{"XAURUB", "EURUSD", "USDJPY", "gold"}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Feed.Tickers == nil {
		c.Feed.Tickers = append([]string(nil), DefaultTickers...)
	}

	// Connection defaults
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Connection.AuthTimeout == 0 {
		c.Connection.AuthTimeout = DefaultAuthTimeout
	}
	if c.Connection.HandshakeTimeout == 0 {
		c.Connection.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Heartbeat defaults
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeatInterval
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = DefaultHeartbeatTimeout
	}

	// Redis defaults only matter when the sink is on.
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = sink.DefaultChannelPrefix
	}
	if c.Redis.BatchSize == 0 {
		c.Redis.BatchSize = sink.DefaultBatchSize
	}
	if c.Redis.FlushInterval == 0 {
		c.Redis.FlushInterval = sink.DefaultFlushInterval
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
