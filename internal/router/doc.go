// Package router maps topic patterns to registered handlers per connection.
//
// Payloads cross the parse boundary here: handlers only ever see validated
// domain types, and malformed payloads are counted, logged, and dropped.
// No ordering is guaranteed across topics; within a topic, handlers run in
// transport delivery order.
package router
