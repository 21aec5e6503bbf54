// Package stream merges paginated history and live-pushed messages into a
// single ordered, de-duplicated display sequence.
package stream
