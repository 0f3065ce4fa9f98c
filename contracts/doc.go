// Package contracts defines the shared vocabulary of the dds-go library:
// domain identifiers, quality-of-service bundles, reliability policies,
// discovery match statuses and per-sample metadata. These types are the
// common currency between the endpoint layer (pubsub) and the engine
// implementations (internal/inproc, transports/amqp).
package contracts
