package inproc

import (
	"sync"

	"github.com/google/uuid"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
)

// participant implements pubsub.Participant.
type participant struct {
	engine *Engine
	domain *domain
	id     string
	qos    contracts.ParticipantQoS

	mu     sync.Mutex
	closed bool
	types  map[string]struct{}
	pubs   map[*pubEntity]struct{}
	subs   map[*subEntity]struct{}
	topics map[*topic]struct{}
}

func newParticipant(e *Engine, d *domain, qos contracts.ParticipantQoS) *participant {
	return &participant{
		engine: e,
		domain: d,
		id:     uuid.NewString(),
		qos:    qos,
		types:  make(map[string]struct{}),
		pubs:   make(map[*pubEntity]struct{}),
		subs:   make(map[*subEntity]struct{}),
		topics: make(map[*topic]struct{}),
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
	if p.closed {
		p.mu.Unlock()
		return nil, contracts.ErrParticipantClosed
	}
	if _, ok := p.types[typeName]; !ok {
		p.mu.Unlock()
		return nil, &contracts.EntityError{Entity: "topic", Op: "create", Err: contracts.ErrTypeNotRegistered}
	}
	p.mu.Unlock()

	if err := p.domain.bindTopic(p.id, name, typeName); err != nil {
		return nil, err
	}

	t := &topic{participant: p, name: name, typeName: typeName}
	p.mu.Lock()
	p.topics[t] = struct{}{}
	p.mu.Unlock()
	return t, nil
}

func (p *participant) DeleteTopic(t pubsub.Topic) error {
	tt, ok := t.(*topic)
	if !ok || tt.participant != p {
		return contracts.ErrUnknownEntity
	}
	p.mu.Lock()
	if _, ok := p.topics[tt]; !ok {
		p.mu.Unlock()
		return contracts.ErrUnknownEntity
	}
	delete(p.topics, tt)
	p.mu.Unlock()

	p.domain.unbindTopic(p.id, tt.name)
	return nil
}

func (p *participant) CreatePublisher() (pubsub.PublisherEntity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, contracts.ErrParticipantClosed
	}
	pe := &pubEntity{participant: p, writers: make(map[*writer]struct{})}
	p.pubs[pe] = struct{}{}
	return pe, nil
}

func (p *participant) DeletePublisher(e pubsub.PublisherEntity) error {
	pe, ok := e.(*pubEntity)
	if !ok || pe.participant != p {
		return contracts.ErrUnknownEntity
	}
	p.mu.Lock()
	if _, ok := p.pubs[pe]; !ok {
		p.mu.Unlock()
		return contracts.ErrUnknownEntity
	}
	delete(p.pubs, pe)
	p.mu.Unlock()

	pe.closeAll()
	return nil
}

func (p *participant) CreateSubscriber() (pubsub.SubscriberEntity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, contracts.ErrParticipantClosed
	}
	se := &subEntity{participant: p, readers: make(map[*reader]struct{})}
	p.subs[se] = struct{}{}
	return se, nil
}

func (p *participant) DeleteSubscriber(e pubsub.SubscriberEntity) error {
	se, ok := e.(*subEntity)
	if !ok || se.participant != p {
		return contracts.ErrUnknownEntity
	}
	p.mu.Lock()
	if _, ok := p.subs[se]; !ok {
		p.mu.Unlock()
		return contracts.ErrUnknownEntity
	}
	delete(p.subs, se)
	p.mu.Unlock()

	se.closeAll()
	return nil
}

// Close destroys the participant. Children are expected to be gone by
// now; anything remaining is force-closed so the domain holds no stale
// endpoints.
func (p *participant) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return contracts.ErrParticipantClosed
	}
	p.closed = true
	pubs := make([]*pubEntity, 0, len(p.pubs))
	for pe := range p.pubs {
		pubs = append(pubs, pe)
	}
	subs := make([]*subEntity, 0, len(p.subs))
	for se := range p.subs {
		subs = append(subs, se)
	}
	p.pubs = make(map[*pubEntity]struct{})
	p.subs = make(map[*subEntity]struct{})
	p.topics = make(map[*topic]struct{})
	p.mu.Unlock()

	for _, pe := range pubs {
		pe.closeAll()
	}
	for _, se := range subs {
		se.closeAll()
	}

	p.engine.logger.Debug("participant destroyed", "domain", int(p.domain.id))
	return nil
}

// topic implements pubsub.Topic.
type topic struct {
	participant *participant
	name        string
	typeName    string
}

func (t *topic) Name() string     { return t.name }
func (t *topic) TypeName() string { return t.typeName }
