// Package connection implements the transport layer.
//
// The connection layer:
//   - Wraps one duplex WebSocket per endpoint (notification, chat)
//   - Reconnects with capped exponential backoff and replays subscriptions
//   - Enforces at most one live transport per endpoint
//   - Folds transport errors into observable state, never into callers
package connection
