package amqp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/radarlink/dds-go/contracts"
	internalamqp "github.com/radarlink/dds-go/internal/amqp"
	"github.com/radarlink/dds-go/pubsub"
)

// Engine implements pubsub.Engine over an AMQP broker.
type Engine struct {
	manager *internalamqp.ConnectionManager
	pool    *internalamqp.ChannelPool
	logger  *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	logger            *slog.Logger
	connectionOptions []internalamqp.ConnectionOption
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(cfg *engineConfig) {
		cfg.logger = logger
	}
}

// WithConnectionOptions forwards options to the connection manager.
func WithConnectionOptions(opts ...internalamqp.ConnectionOption) EngineOption {
	return func(cfg *engineConfig) {
		cfg.connectionOptions = append(cfg.connectionOptions, opts...)
	}
}

// NewEngine connects to the broker and returns an engine ready to create
// participants.
func NewEngine(url string, options ...EngineOption) (*Engine, error) {
	cfg := &engineConfig{logger: slog.Default()}
	for _, opt := range options {
		opt(cfg)
	}

	connOpts := append([]internalamqp.ConnectionOption{
		internalamqp.WithConnectionLogger(cfg.logger),
	}, cfg.connectionOptions...)

	manager := internalamqp.NewConnectionManager(url, connOpts...)
	if err := manager.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("amqp: failed to connect: %w", err)
	}

	pool, err := internalamqp.NewChannelPool(manager)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("amqp: failed to create channel pool: %w", err)
	}

	return &Engine{
		manager: manager,
		pool:    pool,
		logger:  cfg.logger,
	}, nil
}

// CreateParticipant declares the domain topology and starts the
// discovery consumer for a new participant.
func (e *Engine) CreateParticipant(domain contracts.DomainID, qos contracts.ParticipantQoS) (pubsub.Participant, error) {
	p, err := newParticipant(e, domain, qos)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("participant created", "domain", int(domain))
	return p, nil
}

// Close tears down the broker connection. Participants created by this
// engine must be closed first.
func (e *Engine) Close() error {
	if err := e.pool.Close(); err != nil {
		e.logger.Warn("failed to close channel pool", "error", err)
	}
	return e.manager.Close()
}
