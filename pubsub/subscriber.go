package pubsub

import (
	"log/slog"
	"sync"

	"github.com/radarlink/dds-go/contracts"
)

// DataCallback receives each delivered sample. It runs on an engine
// goroutine and must not call Close on its own subscriber: Close waits
// for in-flight callbacks to finish.
type DataCallback[T any] func(data T)

// SubMatchCallback is invoked when the subscriber gains its first matched
// writer (matched=true) or loses its last one (matched=false). The same
// threading and no-self-close rules as DataCallback apply.
type SubMatchCallback func(matched bool)

// Subscriber owns one incoming data path: a topic, a subscriber container
// and a data reader under one participant. A data callback is mandatory;
// there is no useful subscriber without one.
type Subscriber[T any] struct {
	participant *ParticipantHandle
	ts          TypeSupport[T]
	logger      *slog.Logger
	onData      DataCallback[T]
	onMatch     SubMatchCallback
	singleTake  bool

	// mu guards the entity fields, which Close nils while Topic may be
	// reading them from listener goroutines.
	mu        sync.Mutex
	topic     Topic
	container SubscriberEntity
	reader    Reader

	closeOnce sync.Once
	closeErr  error
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*subscriberConfig)

type subscriberConfig struct {
	qos        contracts.EndpointQoS
	logger     *slog.Logger
	onMatch    SubMatchCallback
	singleTake bool
}

// WithSubscriberReliability overrides the reader reliability policy
// (default: BestEffort).
func WithSubscriberReliability(r contracts.Reliability) SubscriberOption {
	return func(cfg *subscriberConfig) {
		cfg.qos.Reliability = r
	}
}

// WithSubscriberQoS replaces the whole reader QoS bundle.
func WithSubscriberQoS(qos contracts.EndpointQoS) SubscriberOption {
	return func(cfg *subscriberConfig) {
		cfg.qos = qos
	}
}

// WithSubscriberMatchCallback attaches an edge-triggered match callback.
func WithSubscriberMatchCallback(cb SubMatchCallback) SubscriberOption {
	return func(cfg *subscriberConfig) {
		cfg.onMatch = cb
	}
}

// WithSingleTakePerNotify limits delivery to one taken sample per
// data-available notification instead of draining everything buffered.
// With engines that coalesce several arrivals into one notification this
// risks starving the reader; draining is the default for that reason.
func WithSingleTakePerNotify() SubscriberOption {
	return func(cfg *subscriberConfig) {
		cfg.singleTake = true
	}
}

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(cfg *subscriberConfig) {
		cfg.logger = logger
	}
}

// NewSubscriber creates a subscriber endpoint on topicName under the
// given participant. Construction mirrors the publisher: type
// registration -> topic -> subscriber container -> reader; any failure
// tears down what was already created and returns the error.
func NewSubscriber[T any](participant *ParticipantHandle, ts TypeSupport[T], topicName string, onData DataCallback[T], options ...SubscriberOption) (*Subscriber[T], error) {
	if onData == nil {
		return nil, contracts.ErrNilDataHandler
	}

	cfg := &subscriberConfig{
		qos:    contracts.DefaultReaderQoS(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	if err := participant.retain(); err != nil {
		return nil, err
	}

	s := &Subscriber[T]{
		participant: participant,
		ts:          ts,
		logger:      cfg.logger,
		onData:      onData,
		onMatch:     cfg.onMatch,
		singleTake:  cfg.singleTake,
	}

	if err := participant.registerType(ts.Name()); err != nil {
		s.Close()
		return nil, err
	}

	topic, err := participant.entity.CreateTopic(topicName, ts.Name(), contracts.DefaultTopicQoS())
	if err != nil {
		s.Close()
		return nil, &contracts.EntityError{Entity: "topic", Op: "create", Err: err}
	}
	s.mu.Lock()
	s.topic = topic
	s.mu.Unlock()

	container, err := participant.entity.CreateSubscriber()
	if err != nil {
		s.Close()
		return nil, &contracts.EntityError{Entity: "subscriber", Op: "create", Err: err}
	}
	s.mu.Lock()
	s.container = container
	s.mu.Unlock()

	reader, err := container.CreateReader(topic, cfg.qos, &readerBridge[T]{sub: s})
	if err != nil {
		s.Close()
		return nil, &contracts.EntityError{Entity: "reader", Op: "create", Err: err}
	}
	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()

	cfg.logger.Debug("subscriber created",
		"topic", topicName,
		"type", ts.Name(),
		"reliability", cfg.qos.Reliability.String(),
	)

	return s, nil
}

// Topic returns the topic name the subscriber reads from.
func (s *Subscriber[T]) Topic() string {
	s.mu.Lock()
	topic := s.topic
	s.mu.Unlock()
	if topic == nil {
		return ""
	}
	return topic.Name()
}

// Close tears the endpoint down: reader, then subscriber container, then
// topic, then the participant reference, skipping entities whose
// creation never completed. Idempotent.
func (s *Subscriber[T]) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		reader, container, topic := s.reader, s.container, s.topic
		s.reader, s.container, s.topic = nil, nil, nil
		s.mu.Unlock()

		topicName := ""
		if topic != nil {
			topicName = topic.Name()
		}

		if reader != nil {
			if err := container.DeleteReader(reader); err != nil {
				s.logger.Warn("failed to delete reader", "topic", topicName, "error", err)
				s.closeErr = &contracts.EntityError{Entity: "reader", Op: "delete", Err: err}
			}
		}
		if container != nil {
			if err := s.participant.entity.DeleteSubscriber(container); err != nil {
				s.logger.Warn("failed to delete subscriber", "topic", topicName, "error", err)
				if s.closeErr == nil {
					s.closeErr = &contracts.EntityError{Entity: "subscriber", Op: "delete", Err: err}
				}
			}
		}
		if topic != nil {
			if err := s.participant.entity.DeleteTopic(topic); err != nil {
				s.logger.Warn("failed to delete topic", "topic", topicName, "error", err)
				if s.closeErr == nil {
					s.closeErr = &contracts.EntityError{Entity: "topic", Op: "delete", Err: err}
				}
			}
		}
		if err := s.participant.release(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
