package inproc

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
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
		id:       uuid.NewString(),
		topic:    tt,
		qos:      qos,
		listener: l,
		domain:   pe.participant.domain,
		loop:     newEventLoop(),
		matched:  make(map[*reader]struct{}),
	}

	pe.mu.Lock()
	pe.writers[w] = struct{}{}
	pe.mu.Unlock()

	// Matching can fire the listener before CreateWriter returns; the
	// endpoint layer tolerates that.
	pe.participant.domain.addWriter(w)
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

	r := &reader{
		id:       uuid.NewString(),
		topic:    tt,
		qos:      qos,
		listener: l,
		domain:   se.participant.domain,
		loop:     newEventLoop(),
		matched:  make(map[*writer]struct{}),
	}
	if qos.MemoryPolicy == contracts.PreallocatedWithFallback && qos.HistoryDepth > 0 {
		r.queue = make([]storedSample, 0, qos.HistoryDepth)
	}

	se.mu.Lock()
	se.readers[r] = struct{}{}
	se.mu.Unlock()

	se.participant.domain.addReader(r)
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

// writer implements pubsub.Writer.
type writer struct {
	id       string
	topic    *topic
	qos      contracts.EndpointQoS
	listener pubsub.WriterListener
	domain   *domain
	loop     *eventLoop

	mu     sync.Mutex
	closed bool

	// matched is guarded by domain.mu, not writer.mu.
	matched map[*reader]struct{}
}

func (w *writer) Write(payload []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return contracts.ErrEndpointClosed
	}
	w.mu.Unlock()

	now := time.Now()
	for _, r := range w.domain.snapshotReaders(w) {
		r.deliver(payload, contracts.SampleInfo{
			ValidData:     true,
			PublicationID: w.id,
			Timestamp:     now,
		})
	}
	return nil
}

// notifyMatched posts a publication-matched event. Caller holds domain.mu.
func (w *writer) notifyMatched(status contracts.MatchStatus) {
	if w.listener == nil {
		return
	}
	l := w.listener
	w.loop.post(func() {
		l.OnPublicationMatched(w, status)
	})
}

func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.domain.removeWriter(w)
	w.loop.stop()
}

type storedSample struct {
	payload []byte
	info    contracts.SampleInfo
}

// reader implements pubsub.Reader.
type reader struct {
	id       string
	topic    *topic
	qos      contracts.EndpointQoS
	listener pubsub.ReaderListener
	domain   *domain
	loop     *eventLoop

	mu     sync.Mutex
	closed bool
	queue  []storedSample

	// matched is guarded by domain.mu.
	matched map[*writer]struct{}
}

// deliver buffers one sample and schedules a data-available
// notification. A full best-effort reader drops the oldest sample; a
// reliable reader grows past its preallocated depth instead of dropping.
func (r *reader) deliver(payload []byte, info contracts.SampleInfo) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.qos.HistoryDepth > 0 && len(r.queue) >= r.qos.HistoryDepth && r.qos.Reliability == contracts.BestEffort {
		r.queue = r.queue[1:]
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.queue = append(r.queue, storedSample{payload: buf, info: info})
	r.mu.Unlock()

	if r.listener != nil {
		l := r.listener
		r.loop.post(func() {
			l.OnDataAvailable(r)
		})
	}
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

// notifyMatched posts a subscription-matched event. Caller holds
// domain.mu.
func (r *reader) notifyMatched(status contracts.MatchStatus) {
	if r.listener == nil {
		return
	}
	l := r.listener
	r.loop.post(func() {
		l.OnSubscriptionMatched(r, status)
	})
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

	r.domain.removeReader(r)
	r.loop.stop()
}
