package pubsub

import (
	"log/slog"
	"sync"

	"github.com/radarlink/dds-go/contracts"
)

// PubMatchCallback is invoked when the publisher gains its first matched
// reader (matched=true) or loses its last one (matched=false). It runs on
// an engine goroutine; shared state inside the callback is the caller's
// responsibility to protect. The callback must not call Close on its own
// publisher: Close waits for in-flight callbacks to finish.
type PubMatchCallback[T any] func(p *Publisher[T], matched bool)

// Publisher owns one outgoing data path: a topic, a publisher container
// and a data writer under one participant, created in that order and torn
// down in reverse.
type Publisher[T any] struct {
	participant *ParticipantHandle
	ts          TypeSupport[T]
	logger      *slog.Logger
	onMatch     PubMatchCallback[T]

	// mu guards the entity fields, which Close nils while Publish and
	// Topic may be reading them from other goroutines.
	mu        sync.Mutex
	topic     Topic
	container PublisherEntity
	writer    Writer

	closeOnce sync.Once
	closeErr  error
}

// PublisherOption configures a Publisher.
type PublisherOption[T any] func(*publisherConfig[T])

type publisherConfig[T any] struct {
	qos     contracts.EndpointQoS
	logger  *slog.Logger
	onMatch PubMatchCallback[T]
}

// WithPublisherReliability overrides the writer reliability policy
// (default: Reliable).
func WithPublisherReliability[T any](r contracts.Reliability) PublisherOption[T] {
	return func(cfg *publisherConfig[T]) {
		cfg.qos.Reliability = r
	}
}

// WithPublisherQoS replaces the whole writer QoS bundle.
func WithPublisherQoS[T any](qos contracts.EndpointQoS) PublisherOption[T] {
	return func(cfg *publisherConfig[T]) {
		cfg.qos = qos
	}
}

// WithPublisherMatchCallback attaches an edge-triggered match callback.
func WithPublisherMatchCallback[T any](cb PubMatchCallback[T]) PublisherOption[T] {
	return func(cfg *publisherConfig[T]) {
		cfg.onMatch = cb
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger[T any](logger *slog.Logger) PublisherOption[T] {
	return func(cfg *publisherConfig[T]) {
		cfg.logger = logger
	}
}

// NewPublisher creates a publisher endpoint on topicName under the given
// participant. Construction follows the strict order type registration ->
// topic -> publisher container -> writer; a failure at any step tears
// down whatever was already created and returns the error.
func NewPublisher[T any](participant *ParticipantHandle, ts TypeSupport[T], topicName string, options ...PublisherOption[T]) (*Publisher[T], error) {
	cfg := &publisherConfig[T]{
		qos:    contracts.DefaultWriterQoS(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	if err := participant.retain(); err != nil {
		return nil, err
	}

	p := &Publisher[T]{
		participant: participant,
		ts:          ts,
		logger:      cfg.logger,
		onMatch:     cfg.onMatch,
	}

	if err := participant.registerType(ts.Name()); err != nil {
		p.Close()
		return nil, err
	}

	topic, err := participant.entity.CreateTopic(topicName, ts.Name(), contracts.DefaultTopicQoS())
	if err != nil {
		p.Close()
		return nil, &contracts.EntityError{Entity: "topic", Op: "create", Err: err}
	}
	p.mu.Lock()
	p.topic = topic
	p.mu.Unlock()

	container, err := participant.entity.CreatePublisher()
	if err != nil {
		p.Close()
		return nil, &contracts.EntityError{Entity: "publisher", Op: "create", Err: err}
	}
	p.mu.Lock()
	p.container = container
	p.mu.Unlock()

	// The listener is attached only when a match callback was supplied.
	// It holds a back reference to p, which is safe: the writer is
	// deleted before p is released, so the listener never outlives the
	// endpoint.
	var listener WriterListener
	if p.onMatch != nil {
		listener = &writerMatchBridge[T]{pub: p}
	}

	writer, err := container.CreateWriter(topic, cfg.qos, listener)
	if err != nil {
		p.Close()
		return nil, &contracts.EntityError{Entity: "writer", Op: "create", Err: err}
	}
	p.mu.Lock()
	p.writer = writer
	p.mu.Unlock()

	cfg.logger.Debug("publisher created",
		"topic", topicName,
		"type", ts.Name(),
		"reliability", cfg.qos.Reliability.String(),
	)

	return p, nil
}

// Topic returns the topic name the publisher writes to.
func (p *Publisher[T]) Topic() string {
	p.mu.Lock()
	topic := p.topic
	p.mu.Unlock()
	if topic == nil {
		return ""
	}
	return topic.Name()
}

// Publish writes one sample. It returns false on any engine-reported
// failure, including the perfectly normal case of no matched reader yet;
// that is a reported outcome, not a fault. Publishing on a closed
// endpoint returns false.
func (p *Publisher[T]) Publish(data T) bool {
	p.mu.Lock()
	writer := p.writer
	p.mu.Unlock()
	if writer == nil {
		return false
	}
	payload, err := p.ts.Marshal(data)
	if err != nil {
		p.logger.Error("failed to marshal sample", "type", p.ts.Name(), "error", err)
		return false
	}
	if err := writer.Write(payload); err != nil {
		p.logger.Debug("write rejected", "topic", p.Topic(), "error", err)
		return false
	}
	return true
}

// Close tears the endpoint down: writer, then publisher container, then
// topic, then the participant reference. Entities whose creation never
// completed are skipped rather than deleted. Close is idempotent and safe
// on partially constructed endpoints.
func (p *Publisher[T]) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		writer, container, topic := p.writer, p.container, p.topic
		p.writer, p.container, p.topic = nil, nil, nil
		p.mu.Unlock()

		topicName := ""
		if topic != nil {
			topicName = topic.Name()
		}

		if writer != nil {
			if err := container.DeleteWriter(writer); err != nil {
				p.logger.Warn("failed to delete writer", "topic", topicName, "error", err)
				p.closeErr = &contracts.EntityError{Entity: "writer", Op: "delete", Err: err}
			}
		}
		if container != nil {
			if err := p.participant.entity.DeletePublisher(container); err != nil {
				p.logger.Warn("failed to delete publisher", "topic", topicName, "error", err)
				if p.closeErr == nil {
					p.closeErr = &contracts.EntityError{Entity: "publisher", Op: "delete", Err: err}
				}
			}
		}
		if topic != nil {
			if err := p.participant.entity.DeleteTopic(topic); err != nil {
				p.logger.Warn("failed to delete topic", "topic", topicName, "error", err)
				if p.closeErr == nil {
					p.closeErr = &contracts.EntityError{Entity: "topic", Op: "delete", Err: err}
				}
			}
		}
		if err := p.participant.release(); err != nil && p.closeErr == nil {
			p.closeErr = err
		}
	})
	return p.closeErr
}
