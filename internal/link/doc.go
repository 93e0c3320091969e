// Package link owns the logical connection lifecycle.
//
// Ownership boundary:
// - endpoint resolution (parse-once connection descriptor)
//
// - phase transitions: idle -> connecting -> open -> reconnecting -> failed/closed
//
// - wiring bus handlers to the backoff controller and the injected
//   transport/codec seams
//
// A link owns its bus, its loop, its endpoint, and its backoff controller
// exclusively; nothing is shared across link instances.
//
// The transport driver is the other side of the seam: it subscribes to the
// connect/reconnect intents, opens the channel, and reports open/data/end
// back through bus emitters. Decode failures never unwind past the bus;
// they surface only as an opt-in error event. Terminal conditions surface
// exactly once as an end event.
package link
