// Package transport ships the batteries-included channel drivers.
//
// Ownership boundary:
// - WebSocket driver (gorilla)
//
// - raw TCP driver with length-prefixed frames
//
// - client TLS configuration shared by both
//
// A driver binds to exactly one link: it subscribes to the link's
// connect/reconnect intents, dials asynchronously, and reports
// open/data/end through the link's emitters. Drivers never call back into
// the link synchronously from their own read loops.
package transport
