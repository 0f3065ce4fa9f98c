package inproc

import (
	"log/slog"
	"sync"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
)

// Engine implements pubsub.Engine in process.
type Engine struct {
	mu      sync.Mutex
	domains map[contracts.DomainID]*domain
	logger  *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an in-process engine.
func NewEngine(options ...Option) *Engine {
	e := &Engine{
		domains: make(map[contracts.DomainID]*domain),
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// CreateParticipant creates a participant bound to the given domain.
func (e *Engine) CreateParticipant(id contracts.DomainID, qos contracts.ParticipantQoS) (pubsub.Participant, error) {
	e.mu.Lock()
	d, ok := e.domains[id]
	if !ok {
		d = newDomain(id)
		e.domains[id] = d
	}
	e.mu.Unlock()

	e.logger.Debug("participant created", "domain", int(id))
	return newParticipant(e, d, qos), nil
}

// domain holds every live writer and reader of one domain and performs
// the matching between them. Domains are fully isolated from each other.
type domain struct {
	id contracts.DomainID

	mu      sync.Mutex
	writers map[*writer]struct{}
	readers map[*reader]struct{}
	// topic name -> type name, per participant, to reject inconsistent
	// re-creation of a topic with a different type.
	topicTypes map[string]map[string]*topicRef
}

type topicRef struct {
	typeName string
	refs     int
}

func newDomain(id contracts.DomainID) *domain {
	return &domain{
		id:         id,
		writers:    make(map[*writer]struct{}),
		readers:    make(map[*reader]struct{}),
		topicTypes: make(map[string]map[string]*topicRef),
	}
}

func (d *domain) bindTopic(participantID, name, typeName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	byName, ok := d.topicTypes[participantID]
	if !ok {
		byName = make(map[string]*topicRef)
		d.topicTypes[participantID] = byName
	}
	ref, ok := byName[name]
	if !ok {
		byName[name] = &topicRef{typeName: typeName, refs: 1}
		return nil
	}
	if ref.typeName != typeName {
		return contracts.ErrTypeMismatch
	}
	ref.refs++
	return nil
}

func (d *domain) unbindTopic(participantID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byName, ok := d.topicTypes[participantID]
	if !ok {
		return
	}
	ref, ok := byName[name]
	if !ok {
		return
	}
	ref.refs--
	if ref.refs == 0 {
		delete(byName, name)
	}
}

func compatible(w *writer, r *reader) bool {
	return w.topic.name == r.topic.name &&
		w.topic.typeName == r.topic.typeName &&
		w.qos.Reliability.CompatibleWith(r.qos.Reliability)
}

// addWriter registers a writer and matches it against every compatible
// reader. The writer receives a single batched event (count == delta), so
// coming up in a domain with several live readers still produces exactly
// one 0 -> N transition.
func (d *domain) addWriter(w *writer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.writers[w] = struct{}{}
	var peers []*reader
	for r := range d.readers {
		if compatible(w, r) {
			peers = append(peers, r)
		}
	}
	for _, r := range peers {
		w.matched[r] = struct{}{}
		r.matched[w] = struct{}{}
	}

	if len(peers) > 0 {
		w.notifyMatched(contracts.MatchStatus{
			CurrentCount:       len(peers),
			CurrentCountChange: len(peers),
		})
		for _, r := range peers {
			r.notifyMatched(contracts.MatchStatus{
				CurrentCount:       len(r.matched),
				CurrentCountChange: 1,
			})
		}
	}
}

// removeWriter unregisters a writer and unmatches each of its peers with
// an individual -1 delta.
func (d *domain) removeWriter(w *writer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.writers, w)
	for r := range w.matched {
		delete(r.matched, w)
		r.notifyMatched(contracts.MatchStatus{
			CurrentCount:       len(r.matched),
			CurrentCountChange: -1,
		})
	}
	w.matched = make(map[*reader]struct{})
}

func (d *domain) addReader(r *reader) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.readers[r] = struct{}{}
	var peers []*writer
	for w := range d.writers {
		if compatible(w, r) {
			peers = append(peers, w)
		}
	}
	for _, w := range peers {
		r.matched[w] = struct{}{}
		w.matched[r] = struct{}{}
	}

	if len(peers) > 0 {
		r.notifyMatched(contracts.MatchStatus{
			CurrentCount:       len(peers),
			CurrentCountChange: len(peers),
		})
		for _, w := range peers {
			w.notifyMatched(contracts.MatchStatus{
				CurrentCount:       len(w.matched),
				CurrentCountChange: 1,
			})
		}
	}
}

func (d *domain) removeReader(r *reader) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.readers, r)
	for w := range r.matched {
		delete(w.matched, r)
		w.notifyMatched(contracts.MatchStatus{
			CurrentCount:       len(w.matched),
			CurrentCountChange: -1,
		})
	}
	r.matched = make(map[*writer]struct{})
}

// snapshotReaders returns the writer's currently matched readers.
func (d *domain) snapshotReaders(w *writer) []*reader {
	d.mu.Lock()
	defer d.mu.Unlock()
	peers := make([]*reader, 0, len(w.matched))
	for r := range w.matched {
		peers = append(peers, r)
	}
	return peers
}
