// Package room tracks support rooms on the admin side: which exist, which
// are resolved, and which admin currently owns each.
package room
