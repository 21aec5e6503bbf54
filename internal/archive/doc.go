// Package archive batches received chat messages into a Postgres table for
// the ops dashboard. Duplicate-safe by primary key on (room_key, id); the
// archive is tooling, not the backend's message store.
package archive
