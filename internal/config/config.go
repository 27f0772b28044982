package config

import "time"

// Config is the root configuration for a quote feed client.
type Config struct {
	Feed       FeedConfig       `yaml:"feed"`
	Connection ConnectionConfig `yaml:"connection"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Redis      RedisConfig      `yaml:"redis"`
	Log        LogConfig        `yaml:"log"`
	Health     HealthConfig     `yaml:"health"`
}

// FeedConfig identifies the quote server and what to subscribe to.
type FeedConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Tickers []string `yaml:"tickers"` // Subscribed after every authentication
}

// ConnectionConfig holds WebSocket and reconnect settings.
type ConnectionConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	AuthTimeout       time.Duration `yaml:"auth_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// HeartbeatConfig holds application-level ping settings.
type HeartbeatConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	EnforceTimeout bool          `yaml:"enforce_timeout"` // Reconnect when a pong is overdue
}

// RedisConfig holds the optional quote sink. Empty Addr disables it.
type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// HealthConfig holds the health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port"`
}
