// Package session resolves the current actor's identity.
//
// A Resolver reads a persisted guest key or bearer token from a Store and
// produces a stable Session used as the room-routing key. Guest keys are
// generated once and reused; expired tokens are rotated out and resolution
// falls back to the guest path.
package session
