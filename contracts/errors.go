package contracts

import (
	"errors"
	"fmt"
)

var (
	// Entity lifecycle errors
	ErrParticipantClosed = errors.New("dds: participant is closed")
	ErrEndpointClosed    = errors.New("dds: endpoint is closed")
	ErrCreateFailed      = errors.New("dds: entity creation failed")
	ErrUnknownEntity     = errors.New("dds: entity does not belong to this parent")

	// Type registration errors
	ErrTypeNameEmpty     = errors.New("dds: type name cannot be empty")
	ErrTypeNotRegistered = errors.New("dds: type is not registered with the participant")
	ErrTypeMismatch      = errors.New("dds: topic already exists with a different type")

	// Data path errors
	ErrNoData         = errors.New("dds: no sample available")
	ErrNotMatched     = errors.New("dds: no matched reader")
	ErrHistoryFull    = errors.New("dds: reader history is full")
	ErrNilDataHandler = errors.New("dds: data callback cannot be nil")
)

// EntityError wraps a failure of one engine entity operation with enough
// context to tell which step of a construction or teardown sequence broke.
type EntityError struct {
	Entity string // participant, topic, publisher, subscriber, writer, reader
	Op     string // create, delete, write, take
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("dds: %s %s failed: %v", e.Entity, e.Op, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}
