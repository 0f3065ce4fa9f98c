package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
)

var errNotConfirmed = errors.New("amqp: publish not confirmed by broker")

const confirmTimeout = 5 * time.Second

const (
	headerPublicationID = "x-dds-publication-id"
	headerTypeName      = "x-dds-type-name"
	headerReliability   = "x-dds-reliability"
)

// pubEntity implements pubsub.PublisherEntity.
type pubEntity struct {
	participant *participant

	mu      sync.Mutex
	writers map[*writer]struct{}
}

func (pe *pubEntity) CreateWriter(t pubsub.Topic, qos contracts.EndpointQoS, l pubsub.WriterListener) (pubsub.Writer, error) {
	tt, ok := t.(*topic)
	if !ok || tt.participant != pe.participant {
		return nil, contracts.ErrUnknownEntity
	}

	w := &writer{
		participant: pe.participant,
		id:          uuid.NewString(),
		topic:       tt,
		qos:         qos,
		listener:    l,
	}

	// Reliable writers need a dedicated confirm-mode channel; confirm
	// state is sticky per channel, so pooled channels cannot carry it.
	// Best-effort writers publish through the shared pool instead.
	if qos.Reliability == contracts.Reliable {
		conn, err := pe.participant.engine.manager.GetConnection()
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("amqp: failed to open writer channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("amqp: failed to enable confirms: %w", err)
		}
		w.ch = ch
		w.confirms = ch.NotifyPublish(make(chan amqp091.Confirmation, 16))
	}

	pe.mu.Lock()
	pe.writers[w] = struct{}{}
	pe.mu.Unlock()

	// Registry first, announcement second: match events for this writer
	// may fire before CreateWriter returns, which the endpoint layer
	// tolerates.
	pe.participant.registry.addLocal(&localEndpoint{
		id:          w.id,
		kind:        kindWriter,
		topic:       tt.name,
		typeName:    tt.typeName,
		reliability: qos.Reliability,
		notify: func(st contracts.MatchStatus) {
			if w.listener != nil {
				w.listener.OnPublicationMatched(w, st)
			}
		},
	})
	pe.participant.announceEndpoint(announcement{
		ParticipantID: pe.participant.id,
		EndpointID:    w.id,
		Kind:          kindWriter,
		Topic:         tt.name,
		TypeName:      tt.typeName,
		Reliability:   qos.Reliability.String(),
		Action:        actionAnnounce,
	})
	return w, nil
}

func (pe *pubEntity) DeleteWriter(pw pubsub.Writer) error {
	w, ok := pw.(*writer)
	if !ok {
		return contracts.ErrUnknownEntity
	}
	pe.mu.Lock()
	if _, ok := pe.writers[w]; !ok {
		pe.mu.Unlock()
		return contracts.ErrUnknownEntity
	}
	delete(pe.writers, w)
	pe.mu.Unlock()

	w.close()
	return nil
}

func (pe *pubEntity) closeAll() {
	pe.mu.Lock()
	ws := make([]*writer, 0, len(pe.writers))
	for w := range pe.writers {
		ws = append(ws, w)
	}
	pe.writers = make(map[*writer]struct{})
	pe.mu.Unlock()
	for _, w := range ws {
		w.close()
	}
}

// subEntity implements pubsub.SubscriberEntity.
type subEntity struct {
	participant *participant

	mu      sync.Mutex
	readers map[*reader]struct{}
}

func (se *subEntity) CreateReader(t pubsub.Topic, qos contracts.EndpointQoS, l pubsub.ReaderListener) (pubsub.Reader, error) {
	tt, ok := t.(*topic)
	if !ok || tt.participant != se.participant {
		return nil, contracts.ErrUnknownEntity
	}

	conn, err := se.participant.engine.manager.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: failed to open reader channel: %w", err)
	}

	r := &reader{
		participant: se.participant,
		id:          uuid.NewString(),
		topic:       tt,
		qos:         qos,
		listener:    l,
		ch:          ch,
	}
	if qos.MemoryPolicy == contracts.PreallocatedWithFallback && qos.HistoryDepth > 0 {
		r.queue = make([]storedSample, 0, qos.HistoryDepth)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp: failed to declare reader queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, tt.name, dataExchange(se.participant.domain), false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp: failed to bind reader queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "reader-"+r.id, true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp: failed to start reader consumer: %w", err)
	}

	se.mu.Lock()
	se.readers[r] = struct{}{}
	se.mu.Unlock()

	r.consumed.Add(1)
	go r.consumeData(deliveries)

	se.participant.registry.addLocal(&localEndpoint{
		id:          r.id,
		kind:        kindReader,
		topic:       tt.name,
		typeName:    tt.typeName,
		reliability: qos.Reliability,
		notify: func(st contracts.MatchStatus) {
			if r.listener != nil {
				r.listener.OnSubscriptionMatched(r, st)
			}
		},
	})
	se.participant.announceEndpoint(announcement{
		ParticipantID: se.participant.id,
		EndpointID:    r.id,
		Kind:          kindReader,
		Topic:         tt.name,
		TypeName:      tt.typeName,
		Reliability:   qos.Reliability.String(),
		Action:        actionAnnounce,
	})
	return r, nil
}

func (se *subEntity) DeleteReader(pr pubsub.Reader) error {
	r, ok := pr.(*reader)
	if !ok {
		return contracts.ErrUnknownEntity
	}
	se.mu.Lock()
	if _, ok := se.readers[r]; !ok {
		se.mu.Unlock()
		return contracts.ErrUnknownEntity
	}
	delete(se.readers, r)
	se.mu.Unlock()

	r.close()
	return nil
}

func (se *subEntity) closeAll() {
	se.mu.Lock()
	rs := make([]*reader, 0, len(se.readers))
	for r := range se.readers {
		rs = append(rs, r)
	}
	se.readers = make(map[*reader]struct{})
	se.mu.Unlock()
	for _, r := range rs {
		r.close()
	}
}

// writer implements pubsub.Writer over one confirm-capable channel.
type writer struct {
	participant *participant
	id          string
	topic       *topic
	qos         contracts.EndpointQoS
	listener    pubsub.WriterListener
	ch          *amqp091.Channel
	confirms    <-chan amqp091.Confirmation

	mu     sync.Mutex
	closed bool
}

func (w *writer) Write(payload []byte) error {
	// Writes are serialized so each publish pairs with its own broker
	// confirmation.
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return contracts.ErrEndpointClosed
	}

	publishing := amqp091.Publishing{
		ContentType: "application/octet-stream",
		Body:        payload,
		Timestamp:   time.Now(),
		Headers: amqp091.Table{
			headerPublicationID: w.id,
			headerTypeName:      w.topic.typeName,
			headerReliability:   w.qos.Reliability.String(),
		},
	}
	if w.qos.Reliability == contracts.Reliable {
		publishing.DeliveryMode = amqp091.Persistent
	}

	exchange := dataExchange(w.participant.domain)

	if w.ch != nil {
		tag := w.ch.GetNextPublishSeqNo()
		err := w.ch.PublishWithContext(context.Background(), exchange, w.topic.name, false, false, publishing)
		if err != nil {
			return fmt.Errorf("amqp: publish failed: %w", err)
		}
		return awaitConfirm(w.confirms, tag, confirmTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()
	pooled, err := w.participant.engine.pool.Get(ctx)
	if err != nil {
		return err
	}
	err = pooled.PublishWithContext(ctx, exchange, w.topic.name, false, false, publishing)
	w.participant.engine.pool.Put(pooled)
	if err != nil {
		return fmt.Errorf("amqp: publish failed: %w", err)
	}
	return nil
}

// awaitConfirm waits for the broker confirmation carrying tag. A publish
// whose confirmation arrived only after its own wait timed out leaves a
// stale entry in the confirm stream; entries with a lower tag are
// discarded here so one timeout cannot pair every later publish with its
// predecessor's confirmation.
func awaitConfirm(confirms <-chan amqp091.Confirmation, tag uint64, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case c, ok := <-confirms:
			if !ok {
				return errNotConfirmed
			}
			if c.DeliveryTag < tag {
				continue
			}
			if c.DeliveryTag == tag && c.Ack {
				return nil
			}
			return errNotConfirmed
		case <-deadline.C:
			return errNotConfirmed
		}
	}
}

func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.participant.retireEndpoint(w.id)
	w.participant.registry.removeLocal(w.id)
	if w.ch != nil {
		w.ch.Close()
	}
}

type storedSample struct {
	payload []byte
	info    contracts.SampleInfo
}

// reader implements pubsub.Reader over one consuming channel.
type reader struct {
	participant *participant
	id          string
	topic       *topic
	qos         contracts.EndpointQoS
	listener    pubsub.ReaderListener
	ch          *amqp091.Channel
	consumed    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	queue  []storedSample
}

// consumeData is the reader's data goroutine: every data-available
// notification of this reader fires from here, in delivery order.
func (r *reader) consumeData(deliveries <-chan amqp091.Delivery) {
	defer r.consumed.Done()
	for d := range deliveries {
		if !r.accepts(d) {
			continue
		}
		info := contracts.SampleInfo{
			ValidData: true,
			Timestamp: d.Timestamp,
		}
		if id, ok := d.Headers[headerPublicationID].(string); ok {
			info.PublicationID = id
		}
		if info.Timestamp.IsZero() {
			info.Timestamp = time.Now()
		}
		if !r.buffer(d.Body, info) {
			return
		}
		if r.listener != nil {
			r.listener.OnDataAvailable(r)
		}
	}
}

// accepts filters data-plane deliveries down to compatible publications:
// matching type name and a writer reliability that satisfies this
// reader. Topic routing is already done by the exchange binding.
func (r *reader) accepts(d amqp091.Delivery) bool {
	if tn, ok := d.Headers[headerTypeName].(string); !ok || tn != r.topic.typeName {
		return false
	}
	rel := contracts.Reliable
	if s, ok := d.Headers[headerReliability].(string); ok && s == contracts.BestEffort.String() {
		rel = contracts.BestEffort
	}
	return rel.CompatibleWith(r.qos.Reliability)
}

// buffer stores one sample under the reader's history policy. Returns
// false when the reader is closed.
func (r *reader) buffer(payload []byte, info contracts.SampleInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if r.qos.HistoryDepth > 0 && len(r.queue) >= r.qos.HistoryDepth && r.qos.Reliability == contracts.BestEffort {
		r.queue = r.queue[1:]
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.queue = append(r.queue, storedSample{payload: buf, info: info})
	return true
}

func (r *reader) TakeNextSample() ([]byte, contracts.SampleInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, contracts.SampleInfo{}, contracts.ErrEndpointClosed
	}
	if len(r.queue) == 0 {
		return nil, contracts.SampleInfo{}, contracts.ErrNoData
	}
	s := r.queue[0]
	r.queue = r.queue[1:]
	return s.payload, s.info, nil
}

func (r *reader) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.queue = nil
	r.mu.Unlock()

	r.participant.retireEndpoint(r.id)
	r.participant.registry.removeLocal(r.id)
	r.ch.Close()
	r.consumed.Wait()
}
