// Package database manages the PostgreSQL connection pool for the message
// archive.
package database
