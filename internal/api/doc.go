// Package api provides the REST client for chat history, message sends,
// and admin room operations.
//
// Requests are paced by a rate limiter and retried with jittered backoff
// on 5xx/429; message sends are never retried automatically.
package api
