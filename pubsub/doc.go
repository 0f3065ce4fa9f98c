// Package pubsub implements the entity lifecycle and match-notification
// core of dds-go.
//
// The underlying messaging engine (discovery, reliable delivery, wire
// protocol) sits behind the Engine interface and is a collaborator, not
// part of this package. What lives here is the part that is easy to get
// wrong when driving such an engine directly: the strict create order
// (type -> topic -> container -> writer/reader), the mirrored teardown
// order, reference-counted participant ownership, and the edge-triggered
// translation of discovery peer-count events into "first peer matched" /
// "last peer unmatched" callbacks that never double-fire.
//
// The package starts no goroutines of its own. Listener callbacks run on
// whatever goroutines the engine delivers events from, possibly
// concurrently across endpoints; callers protect their own callback state.
package pubsub
