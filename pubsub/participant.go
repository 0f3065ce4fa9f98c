package pubsub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/radarlink/dds-go/contracts"
)

// ParticipantHandle is a shared, reference-counted owner of one engine
// participant. Every endpoint created under the participant retains the
// handle; the participant is destroyed only when the caller's reference
// and every endpoint reference have been released. Endpoints only ever
// point up to the participant, never the reverse, so no ownership cycles
// exist.
type ParticipantHandle struct {
	entity Participant
	domain contracts.DomainID
	logger *slog.Logger

	mu     sync.Mutex
	refs   int
	closed bool
	types  map[string]struct{}
}

// ParticipantOption configures a ParticipantHandle.
type ParticipantOption func(*participantConfig)

type participantConfig struct {
	qos    contracts.ParticipantQoS
	logger *slog.Logger
}

// WithParticipantQoS overrides the participant quality-of-service bundle.
func WithParticipantQoS(qos contracts.ParticipantQoS) ParticipantOption {
	return func(cfg *participantConfig) {
		cfg.qos = qos
	}
}

// WithParticipantLogger sets the logger.
func WithParticipantLogger(logger *slog.Logger) ParticipantOption {
	return func(cfg *participantConfig) {
		cfg.logger = logger
	}
}

// NewDomainParticipant creates a participant in the given domain through
// the given engine. A creation failure is reported to the caller and
// never retried here.
func NewDomainParticipant(engine Engine, domain contracts.DomainID, options ...ParticipantOption) (*ParticipantHandle, error) {
	if engine == nil {
		return nil, fmt.Errorf("dds: engine cannot be nil")
	}

	cfg := &participantConfig{
		qos:    contracts.DefaultParticipantQoS(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	entity, err := engine.CreateParticipant(domain, cfg.qos)
	if err != nil {
		return nil, &contracts.EntityError{Entity: "participant", Op: "create", Err: err}
	}

	cfg.logger.Debug("participant created", "domain", int(domain))

	return &ParticipantHandle{
		entity: entity,
		domain: domain,
		logger: cfg.logger,
		refs:   1, // the caller's own reference
		types:  make(map[string]struct{}),
	}, nil
}

// Domain returns the participant's domain identifier.
func (h *ParticipantHandle) Domain() contracts.DomainID {
	return h.domain
}

// Close releases the caller's reference. The underlying participant is
// destroyed once no endpoint holds a reference either. Close is
// idempotent.
func (h *ParticipantHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.release()
}

// retain takes one additional reference on behalf of an endpoint.
func (h *ParticipantHandle) retain() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return contracts.ErrParticipantClosed
	}
	h.refs++
	return nil
}

// release drops one reference and destroys the participant when the last
// one goes.
func (h *ParticipantHandle) release() error {
	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return contracts.ErrParticipantClosed
	}
	h.refs--
	last := h.refs == 0
	h.mu.Unlock()

	if !last {
		return nil
	}

	h.logger.Debug("destroying participant", "domain", int(h.domain))
	if err := h.entity.Close(); err != nil {
		return &contracts.EntityError{Entity: "participant", Op: "delete", Err: err}
	}
	return nil
}

// registerType registers a payload type with the participant, once per
// type name. Repeat registrations are no-ops.
func (h *ParticipantHandle) registerType(typeName string) error {
	if typeName == "" {
		return contracts.ErrTypeNameEmpty
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return contracts.ErrParticipantClosed
	}
	if _, ok := h.types[typeName]; ok {
		return nil
	}
	if err := h.entity.RegisterType(typeName); err != nil {
		return fmt.Errorf("dds: failed to register type %s: %w", typeName, err)
	}
	h.types[typeName] = struct{}{}
	return nil
}
