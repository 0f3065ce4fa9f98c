package pubsub

import (
	"github.com/radarlink/dds-go/contracts"
)

// Engine is the entry point of a messaging engine implementation. It is
// the process-wide factory for participants; destruction of a participant
// routes back through the engine that created it, which is the sole owner
// of allocation bookkeeping.
type Engine interface {
	CreateParticipant(domain contracts.DomainID, qos contracts.ParticipantQoS) (Participant, error)
}

// Participant is one engine participant entity: the root of the entity
// hierarchy inside a domain. All creation methods fail with an error
// rather than returning partially usable entities; the caller never
// retries automatically.
type Participant interface {
	// RegisterType registers a payload type descriptor by wire name.
	// Registering the same name twice is a no-op, not an error.
	RegisterType(typeName string) error

	CreateTopic(name, typeName string, qos contracts.TopicQoS) (Topic, error)
	DeleteTopic(t Topic) error

	CreatePublisher() (PublisherEntity, error)
	DeletePublisher(p PublisherEntity) error

	CreateSubscriber() (SubscriberEntity, error)
	DeleteSubscriber(s SubscriberEntity) error

	// Close destroys the participant. The caller guarantees every entity
	// created under it has already been deleted.
	Close() error
}

// Topic is a named, typed logical channel under one participant.
type Topic interface {
	Name() string
	TypeName() string
}

// PublisherEntity is the engine's publisher container. Exactly one live
// writer per endpoint is created under it.
type PublisherEntity interface {
	CreateWriter(t Topic, qos contracts.EndpointQoS, l WriterListener) (Writer, error)
	DeleteWriter(w Writer) error
}

// SubscriberEntity is the engine's subscriber container.
type SubscriberEntity interface {
	CreateReader(t Topic, qos contracts.EndpointQoS, l ReaderListener) (Reader, error)
	DeleteReader(r Reader) error
}

// Writer is the engine's outgoing data primitive. Write reports failure
// through the error value; "no subscriber yet" conditions are normal
// runtime outcomes, not faults.
type Writer interface {
	Write(payload []byte) error
}

// Reader is the engine's incoming data primitive. TakeNextSample removes
// and returns exactly the next buffered sample together with its
// metadata, or contracts.ErrNoData when nothing is buffered.
type Reader interface {
	TakeNextSample() ([]byte, contracts.SampleInfo, error)
}

// WriterListener receives discovery events for one writer. The engine may
// invoke it from its own goroutines, concurrently with the caller's
// thread, and possibly before the endpoint constructor has returned.
// A callback must not delete its own endpoint: deletion waits for
// in-flight callbacks to return, so doing it from inside one deadlocks.
type WriterListener interface {
	OnPublicationMatched(w Writer, status contracts.MatchStatus)
}

// ReaderListener receives discovery and data events for one reader. The
// same threading and no-self-deletion rules as WriterListener apply.
type ReaderListener interface {
	OnSubscriptionMatched(r Reader, status contracts.MatchStatus)
	OnDataAvailable(r Reader)
}
