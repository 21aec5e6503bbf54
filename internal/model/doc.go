// Package model defines the shared domain types: sessions, chat messages,
// notifications, and support rooms.
//
// Inbound payloads are validated here at the parse boundary. Every payload
// becomes a tagged Event; shapes that fail validation are a distinct
// MalformedEvent variant rather than a crash.
package model
