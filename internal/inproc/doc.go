// Package inproc is an in-process implementation of pubsub.Engine.
//
// It matches writers and readers across all participants of the same
// domain inside one process: same topic name, same type name, and a
// reliability pairing where a best-effort writer never satisfies a
// reliable reader. Listener callbacks are delivered from one dispatch
// goroutine per endpoint, so per-endpoint event order is preserved while
// different endpoints fire concurrently, the same threading contract a
// networked engine exhibits.
//
// It backs the default engine of the dds package and the test suite.
package inproc
