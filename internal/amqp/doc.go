// Package amqp holds the low-level AMQP plumbing used by the AMQP-backed
// engine: a connection manager with automatic reconnection and a small
// channel pool. Nothing in here knows about participants, topics or
// matching; that lives in transports/amqp.
package amqp
