// Package history implements backward pagination of chat history.
//
// Pages arrive newest-page-first from the server; the loader walks them in
// order, guards against overlapping fetches, latches hasMore off on an
// empty page, and drops results that resolve after cancellation.
package history
