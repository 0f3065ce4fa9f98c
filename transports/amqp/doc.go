// Package amqp implements pubsub.Engine on top of an AMQP broker.
//
// Topology per domain: a fanout discovery exchange carrying endpoint
// announcements, and a topic data exchange keyed by topic name. Every
// participant consumes the discovery exchange, tracks remote writers and
// readers, and synthesizes the match-count transitions the endpoint layer
// expects. A participant's own announcements loop back through the broker
// like everyone else's, so same-process and cross-process endpoints match
// through a single code path.
//
// Reliability mapping: a reliable writer publishes persistent messages on
// a confirm-mode channel and reports failure when the broker does not
// confirm; a best-effort writer fires and forgets.
package amqp
