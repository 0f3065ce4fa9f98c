package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
)

// announceBurst caps the initial announcement burst regardless of the
// participant QoS; the broker fans announcements out reliably, so the
// very high defaults tuned for lossy multicast discovery are not needed
// here.
const (
	announceBurstCap      = 10
	announceBurstInterval = 100 * time.Millisecond
)

// participant implements pubsub.Participant over AMQP.
type participant struct {
	engine *Engine
	domain contracts.DomainID
	id     string
	qos    contracts.ParticipantQoS

	registry *matchRegistry

	// channel dedicated to discovery consume + announce publish
	ch        *amqp091.Channel
	queueName string
	cancelCtx context.CancelFunc
	consumed  sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	types      map[string]struct{}
	topicTypes map[string]*topicRef
	announced  map[string]announcement // endpoint id -> last announce
}

type topicRef struct {
	typeName string
	refs     int
}

func newParticipant(e *Engine, domain contracts.DomainID, qos contracts.ParticipantQoS) (*participant, error) {
	conn, err := e.manager.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to open discovery channel: %w", err)
	}

	p := &participant{
		engine:     e,
		domain:     domain,
		id:         uuid.NewString(),
		qos:        qos,
		registry:   newMatchRegistry(),
		ch:         ch,
		types:      make(map[string]struct{}),
		topicTypes: make(map[string]*topicRef),
		announced:  make(map[string]announcement),
	}

	if err := p.declareTopology(); err != nil {
		ch.Close()
		return nil, err
	}
	if err := p.startDiscovery(); err != nil {
		ch.Close()
		return nil, err
	}
	return p, nil
}

func (p *participant) declareTopology() error {
	if err := p.ch.ExchangeDeclare(discoveryExchange(p.domain), "fanout", false, true, false, false, nil); err != nil {
		return fmt.Errorf("amqp: failed to declare discovery exchange: %w", err)
	}
	if err := p.ch.ExchangeDeclare(dataExchange(p.domain), "topic", false, true, false, false, nil); err != nil {
		return fmt.Errorf("amqp: failed to declare data exchange: %w", err)
	}
	return nil
}

func (p *participant) startDiscovery() error {
	q, err := p.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: failed to declare discovery queue: %w", err)
	}
	p.queueName = q.Name
	if err := p.ch.QueueBind(q.Name, "", discoveryExchange(p.domain), false, nil); err != nil {
		return fmt.Errorf("amqp: failed to bind discovery queue: %w", err)
	}

	deliveries, err := p.ch.Consume(q.Name, "discovery-"+p.id, true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: failed to start discovery consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancelCtx = cancel
	p.consumed.Add(1)
	go p.consumeDiscovery(ctx, deliveries)
	return nil
}

// consumeDiscovery is the participant's single discovery goroutine; every
// match notification of this participant fires from here, in arrival
// order.
func (p *participant) consumeDiscovery(ctx context.Context, deliveries <-chan amqp091.Delivery) {
	defer p.consumed.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			a, err := decodeAnnouncement(d.Body)
			if err != nil {
				p.engine.logger.Warn("dropping malformed announcement", "error", err)
				continue
			}
			switch a.Action {
			case actionAnnounce:
				if unknown := p.registry.observeAnnounce(a); unknown && a.ParticipantID != p.id {
					// A peer we have never seen: re-announce our own
					// endpoints so both sides converge.
					p.reannounceAll()
				}
			case actionRetire:
				p.registry.observeRetire(a)
			}
		}
	}
}

func (p *participant) publishAnnouncement(a announcement) {
	body, err := encodeAnnouncement(a)
	if err != nil {
		p.engine.logger.Error("failed to encode announcement", "error", err)
		return
	}
	err = p.ch.PublishWithContext(context.Background(), discoveryExchange(p.domain), "", false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.engine.logger.Warn("failed to publish announcement",
			"endpointId", a.EndpointID,
			"action", a.Action,
			"error", err,
		)
	}
}

// announceEndpoint records and publishes an endpoint announcement, with a
// short repeated burst sized by the participant QoS to speed up
// convergence with peers that come up simultaneously.
func (p *participant) announceEndpoint(a announcement) {
	p.mu.Lock()
	p.announced[a.EndpointID] = a
	p.mu.Unlock()

	burst := p.qos.InitialAnnouncements
	if burst > announceBurstCap {
		burst = announceBurstCap
	}
	if burst < 1 {
		burst = 1
	}

	p.publishAnnouncement(a)
	if burst > 1 {
		go func() {
			for i := 1; i < burst; i++ {
				time.Sleep(announceBurstInterval)
				p.mu.Lock()
				_, alive := p.announced[a.EndpointID]
				p.mu.Unlock()
				if !alive {
					return
				}
				p.publishAnnouncement(a)
			}
		}()
	}
}

func (p *participant) retireEndpoint(id string) {
	p.mu.Lock()
	a, ok := p.announced[id]
	delete(p.announced, id)
	p.mu.Unlock()
	if !ok {
		return
	}
	a.Action = actionRetire
	p.publishAnnouncement(a)
}

func (p *participant) reannounceAll() {
	p.mu.Lock()
	as := make([]announcement, 0, len(p.announced))
	for _, a := range p.announced {
		as = append(as, a)
	}
	p.mu.Unlock()
	for _, a := range as {
		p.publishAnnouncement(a)
	}
}

func (p *participant) RegisterType(typeName string) error {
	if typeName == "" {
		return contracts.ErrTypeNameEmpty
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return contracts.ErrParticipantClosed
	}
	p.types[typeName] = struct{}{}
	return nil
}

func (p *participant) CreateTopic(name, typeName string, _ contracts.TopicQoS) (pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, contracts.ErrParticipantClosed
	}
	if _, ok := p.types[typeName]; !ok {
		return nil, &contracts.EntityError{Entity: "topic", Op: "create", Err: contracts.ErrTypeNotRegistered}
	}
	if ref, ok := p.topicTypes[name]; ok {
		if ref.typeName != typeName {
			return nil, contracts.ErrTypeMismatch
		}
		ref.refs++
	} else {
		p.topicTypes[name] = &topicRef{typeName: typeName, refs: 1}
	}
	return &topic{participant: p, name: name, typeName: typeName}, nil
}

func (p *participant) DeleteTopic(t pubsub.Topic) error {
	tt, ok := t.(*topic)
	if !ok || tt.participant != p {
		return contracts.ErrUnknownEntity
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.topicTypes[tt.name]
	if !ok {
		return contracts.ErrUnknownEntity
	}
	ref.refs--
	if ref.refs == 0 {
		delete(p.topicTypes, tt.name)
	}
	return nil
}

func (p *participant) CreatePublisher() (pubsub.PublisherEntity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, contracts.ErrParticipantClosed
	}
	return &pubEntity{participant: p, writers: make(map[*writer]struct{})}, nil
}

func (p *participant) DeletePublisher(e pubsub.PublisherEntity) error {
	pe, ok := e.(*pubEntity)
	if !ok || pe.participant != p {
		return contracts.ErrUnknownEntity
	}
	pe.closeAll()
	return nil
}

func (p *participant) CreateSubscriber() (pubsub.SubscriberEntity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, contracts.ErrParticipantClosed
	}
	return &subEntity{participant: p, readers: make(map[*reader]struct{})}, nil
}

func (p *participant) DeleteSubscriber(e pubsub.SubscriberEntity) error {
	se, ok := e.(*subEntity)
	if !ok || se.participant != p {
		return contracts.ErrUnknownEntity
	}
	se.closeAll()
	return nil
}

// Close retires any endpoints still announced, stops the discovery
// consumer and releases the discovery channel.
func (p *participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return contracts.ErrParticipantClosed
	}
	p.closed = true
	ids := make([]string, 0, len(p.announced))
	for id := range p.announced {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.retireEndpoint(id)
	}

	if p.cancelCtx != nil {
		p.cancelCtx()
	}
	err := p.ch.Close()
	p.consumed.Wait()

	p.engine.logger.Debug("participant destroyed", "domain", int(p.domain))
	return err
}

// topic implements pubsub.Topic.
type topic struct {
	participant *participant
	name        string
	typeName    string
}

func (t *topic) Name() string     { return t.name }
func (t *topic) TypeName() string { return t.typeName }
