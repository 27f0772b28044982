// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one WebSocket client at a time, replaced on every reconnect
//   - Authenticates with an "open" record and keeps the session id from "init"
//   - Runs the heartbeat and receive loops side by side on the same client
//   - Classifies inbound records (ping, finish, quote, other) and emits events
//   - Waits a fixed reconnect interval after any failure, until "finish" or shutdown
//
// The handshake response is one frame. Records before the first "init" with a
// session id are ignored; records after it are dispatched like any later frame,
// once "authenticated" has fired and the configured tickers were subscribed.
//
// States: idle → connecting → authenticating → serving → backoff → connecting ...
package connection
