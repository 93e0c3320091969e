// Package bus owns event dispatch for one link.
//
// Ownership boundary:
// - named-event subscriber registry
//
// - synchronous, subscription-ordered publish
//
// - the single-goroutine task loop that runs driver-sourced dispatch
//
// Handlers run on the loop goroutine; subscription order is dispatch order.
//
// The bus never recovers handler panics and never drops a registered
// subscriber. Driver-facing emitters defer through the loop so a transport
// callback is never re-entered by its own publish.
package bus
