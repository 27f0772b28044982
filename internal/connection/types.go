package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrNoSession     = errors.New("no session")

	// ErrConnect means the transport could not be opened.
	ErrConnect = errors.New("connect failed")
	// ErrAuth means the handshake did not yield a session.
	ErrAuth = errors.New("authentication failed")
	// ErrSend means an outbound frame could not be written.
	ErrSend = errors.New("send failed")
	// ErrConnectionClosed means the peer closed or the network dropped.
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame wraps raw frame data with receive timestamp.
type Frame struct {
	Data       []byte    // Raw frame bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://quotes.example.com/ws)
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                     string        // Feed URL
	Token                   string        // Authentication token sent in the "open" record
	ReconnectInterval       time.Duration // Fixed wait between connection attempts
	HeartbeatInterval       time.Duration // Wait between pings
	HeartbeatTimeout        time.Duration // Max wait for a pong after a ping
	EnforceHeartbeatTimeout bool          // Reconnect when a pong is overdue
	AuthTimeout             time.Duration // Max wait for the handshake response
	Tickers                 []string      // Subscribed right after every authentication
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ReconnectInterval: 5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		AuthTimeout:       10 * time.Second,
	}
}

// State is a Connection Manager lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateServing        State = "serving"
	StateBackoff        State = "backoff"
)

// Stats is a point-in-time view of the Connection Manager.
type Stats struct {
	State            State  `json:"state"`
	Running          bool   `json:"running"`
	Connected        bool   `json:"connected"`
	SessionID        string `json:"session_id,omitempty"`
	HeartbeatSeq     int64  `json:"heartbeat_seq"`
	Reconnects       int64  `json:"reconnects"`
	FramesReceived   int64  `json:"frames_received"`
	QuotesDispatched int64  `json:"quotes_dispatched"`
}
