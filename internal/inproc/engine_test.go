package inproc

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarlink/dds-go/contracts"
	"github.com/radarlink/dds-go/pubsub"
)

const eventTimeout = 2 * time.Second

// matchRecorder records match events from either endpoint kind.
type matchRecorder struct {
	events chan contracts.MatchStatus
}

func newMatchRecorder() *matchRecorder {
	return &matchRecorder{events: make(chan contracts.MatchStatus, 16)}
}

func (m *matchRecorder) OnPublicationMatched(_ pubsub.Writer, st contracts.MatchStatus) {
	m.events <- st
}

func (m *matchRecorder) OnSubscriptionMatched(_ pubsub.Reader, st contracts.MatchStatus) {
	m.events <- st
}

func (m *matchRecorder) OnDataAvailable(pubsub.Reader) {}

func (m *matchRecorder) next(t *testing.T) contracts.MatchStatus {
	t.Helper()
	select {
	case st := <-m.events:
		return st
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for a match event")
		return contracts.MatchStatus{}
	}
}

func (m *matchRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case st := <-m.events:
		t.Fatalf("unexpected match event %+v", st)
	case <-time.After(50 * time.Millisecond):
	}
}

// dataRecorder records data-available notifications.
type dataRecorder struct {
	notify chan pubsub.Reader
}

func newDataRecorder() *dataRecorder {
	return &dataRecorder{notify: make(chan pubsub.Reader, 16)}
}

func (d *dataRecorder) OnSubscriptionMatched(pubsub.Reader, contracts.MatchStatus) {}

func (d *dataRecorder) OnDataAvailable(r pubsub.Reader) {
	d.notify <- r
}

func (d *dataRecorder) next(t *testing.T) pubsub.Reader {
	t.Helper()
	select {
	case r := <-d.notify:
		return r
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for a data notification")
		return nil
	}
}

func quietEngine() *Engine {
	return NewEngine(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// fixture builds a participant with a registered type and a topic.
type fixture struct {
	t           *testing.T
	participant pubsub.Participant
	topic       pubsub.Topic
}

func newFixture(t *testing.T, e *Engine, domain contracts.DomainID, topicName string) *fixture {
	t.Helper()
	p, err := e.CreateParticipant(domain, contracts.DefaultParticipantQoS())
	require.NoError(t, err)
	require.NoError(t, p.RegisterType("String"))
	topic, err := p.CreateTopic(topicName, "String", contracts.DefaultTopicQoS())
	require.NoError(t, err)
	return &fixture{t: t, participant: p, topic: topic}
}

func (f *fixture) writer(qos contracts.EndpointQoS, l pubsub.WriterListener) pubsub.Writer {
	f.t.Helper()
	pe, err := f.participant.CreatePublisher()
	require.NoError(f.t, err)
	w, err := pe.CreateWriter(f.topic, qos, l)
	require.NoError(f.t, err)
	return w
}

func (f *fixture) reader(qos contracts.EndpointQoS, l pubsub.ReaderListener) pubsub.Reader {
	f.t.Helper()
	se, err := f.participant.CreateSubscriber()
	require.NoError(f.t, err)
	r, err := se.CreateReader(f.topic, qos, l)
	require.NoError(f.t, err)
	return r
}

func TestParticipantLifecycle(t *testing.T) {
	e := quietEngine()

	t.Run("topic requires a registered type", func(t *testing.T) {
		p, err := e.CreateParticipant(0, contracts.DefaultParticipantQoS())
		require.NoError(t, err)

		_, err = p.CreateTopic("chatter", "Unregistered", contracts.DefaultTopicQoS())
		assert.ErrorIs(t, err, contracts.ErrTypeNotRegistered)

		require.NoError(t, p.Close())
	})

	t.Run("same topic name with a different type is rejected", func(t *testing.T) {
		p, err := e.CreateParticipant(1, contracts.DefaultParticipantQoS())
		require.NoError(t, err)
		require.NoError(t, p.RegisterType("A"))
		require.NoError(t, p.RegisterType("B"))

		first, err := p.CreateTopic("chatter", "A", contracts.DefaultTopicQoS())
		require.NoError(t, err)

		_, err = p.CreateTopic("chatter", "B", contracts.DefaultTopicQoS())
		assert.ErrorIs(t, err, contracts.ErrTypeMismatch)

		require.NoError(t, p.DeleteTopic(first))
		require.NoError(t, p.Close())
	})

	t.Run("closed participant rejects new entities", func(t *testing.T) {
		p, err := e.CreateParticipant(2, contracts.DefaultParticipantQoS())
		require.NoError(t, err)
		require.NoError(t, p.Close())

		assert.ErrorIs(t, p.RegisterType("String"), contracts.ErrParticipantClosed)
		_, err = p.CreatePublisher()
		assert.ErrorIs(t, err, contracts.ErrParticipantClosed)
		_, err = p.CreateSubscriber()
		assert.ErrorIs(t, err, contracts.ErrParticipantClosed)
	})

	t.Run("foreign entities are rejected on delete", func(t *testing.T) {
		a := newFixture(t, e, 3, "chatter")
		b := newFixture(t, e, 3, "chatter")

		assert.ErrorIs(t, a.participant.DeleteTopic(b.topic), contracts.ErrUnknownEntity)

		require.NoError(t, a.participant.Close())
		require.NoError(t, b.participant.Close())
	})
}

func TestMatching(t *testing.T) {
	t.Run("writer and reader on the same topic match both ways", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		wRec := newMatchRecorder()
		rRec := newMatchRecorder()
		f.writer(contracts.DefaultWriterQoS(), wRec)
		f.reader(contracts.DefaultReaderQoS(), rRec)

		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, wRec.next(t))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, rRec.next(t))
	})

	t.Run("different topics never match", func(t *testing.T) {
		e := quietEngine()
		f1 := newFixture(t, e, 0, "left")
		f2 := newFixture(t, e, 0, "right")

		wRec := newMatchRecorder()
		rRec := newMatchRecorder()
		f1.writer(contracts.DefaultWriterQoS(), wRec)
		f2.reader(contracts.DefaultReaderQoS(), rRec)

		wRec.expectNone(t)
		rRec.expectNone(t)
	})

	t.Run("different domains never match", func(t *testing.T) {
		e := quietEngine()
		f1 := newFixture(t, e, 0, "chatter")
		f2 := newFixture(t, e, 7, "chatter")

		wRec := newMatchRecorder()
		rRec := newMatchRecorder()
		f1.writer(contracts.DefaultWriterQoS(), wRec)
		f2.reader(contracts.DefaultReaderQoS(), rRec)

		wRec.expectNone(t)
		rRec.expectNone(t)
	})

	t.Run("best-effort writer is incompatible with reliable reader", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		wRec := newMatchRecorder()
		rRec := newMatchRecorder()
		wQoS := contracts.DefaultWriterQoS()
		wQoS.Reliability = contracts.BestEffort
		rQoS := contracts.DefaultReaderQoS()
		rQoS.Reliability = contracts.Reliable

		f.writer(wQoS, wRec)
		f.reader(rQoS, rRec)

		wRec.expectNone(t)
		rRec.expectNone(t)
	})

	t.Run("reliable writer matches both reader modes", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		wRec := newMatchRecorder()
		f.writer(contracts.DefaultWriterQoS(), wRec)

		rQoS := contracts.DefaultReaderQoS()
		rQoS.Reliability = contracts.Reliable
		f.reader(rQoS, nil)
		f.reader(contracts.DefaultReaderQoS(), nil)

		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, wRec.next(t))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 2, CurrentCountChange: 1}, wRec.next(t))
	})

	t.Run("late endpoint receives one batched event", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		f.reader(contracts.DefaultReaderQoS(), nil)
		f.reader(contracts.DefaultReaderQoS(), nil)

		wRec := newMatchRecorder()
		f.writer(contracts.DefaultWriterQoS(), wRec)

		assert.Equal(t, contracts.MatchStatus{CurrentCount: 2, CurrentCountChange: 2}, wRec.next(t))
		wRec.expectNone(t)
	})

	t.Run("peer removal produces individual -1 events down to zero", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		rRec := newMatchRecorder()
		se, err := f.participant.CreateSubscriber()
		require.NoError(t, err)
		_, err = se.CreateReader(f.topic, contracts.DefaultReaderQoS(), rRec)
		require.NoError(t, err)

		pe, err := f.participant.CreatePublisher()
		require.NoError(t, err)
		w1, err := pe.CreateWriter(f.topic, contracts.DefaultWriterQoS(), nil)
		require.NoError(t, err)
		w2, err := pe.CreateWriter(f.topic, contracts.DefaultWriterQoS(), nil)
		require.NoError(t, err)

		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, rRec.next(t))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 2, CurrentCountChange: 1}, rRec.next(t))

		require.NoError(t, pe.DeleteWriter(w1))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: -1}, rRec.next(t))

		require.NoError(t, pe.DeleteWriter(w2))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 0, CurrentCountChange: -1}, rRec.next(t))
	})
}

func TestDataPath(t *testing.T) {
	t.Run("written samples reach matched readers", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		rec := newDataRecorder()
		w := f.writer(contracts.DefaultWriterQoS(), nil)
		f.reader(contracts.DefaultReaderQoS(), rec)

		require.NoError(t, w.Write([]byte(`"hello"`)))

		r := rec.next(t)
		payload, info, err := r.TakeNextSample()
		require.NoError(t, err)
		assert.Equal(t, []byte(`"hello"`), payload)
		assert.True(t, info.ValidData)
		assert.NotEmpty(t, info.PublicationID)
		assert.False(t, info.Timestamp.IsZero())
	})

	t.Run("unmatched writer drops silently", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		w := f.writer(contracts.DefaultWriterQoS(), nil)
		require.NoError(t, w.Write([]byte(`"nobody home"`)))
	})

	t.Run("empty reader reports no data", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		r := f.reader(contracts.DefaultReaderQoS(), nil)
		_, _, err := r.TakeNextSample()
		assert.ErrorIs(t, err, contracts.ErrNoData)
	})

	t.Run("samples are copied on delivery", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		rec := newDataRecorder()
		w := f.writer(contracts.DefaultWriterQoS(), nil)
		f.reader(contracts.DefaultReaderQoS(), rec)

		payload := []byte(`"original"`)
		require.NoError(t, w.Write(payload))
		payload[1] = 'X'

		r := rec.next(t)
		got, _, err := r.TakeNextSample()
		require.NoError(t, err)
		assert.Equal(t, []byte(`"original"`), got)
	})

	t.Run("full best-effort history drops the oldest sample", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		qos := contracts.DefaultReaderQoS()
		qos.HistoryDepth = 2
		w := f.writer(contracts.DefaultWriterQoS(), nil)
		r := f.reader(qos, nil)

		require.NoError(t, w.Write([]byte(`1`)))
		require.NoError(t, w.Write([]byte(`2`)))
		require.NoError(t, w.Write([]byte(`3`)))

		got1, _, err := r.TakeNextSample()
		require.NoError(t, err)
		got2, _, err := r.TakeNextSample()
		require.NoError(t, err)
		assert.Equal(t, []byte(`2`), got1)
		assert.Equal(t, []byte(`3`), got2)

		_, _, err = r.TakeNextSample()
		assert.ErrorIs(t, err, contracts.ErrNoData)
	})

	t.Run("full reliable history grows instead of dropping", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		qos := contracts.DefaultReaderQoS()
		qos.Reliability = contracts.Reliable
		qos.HistoryDepth = 2
		w := f.writer(contracts.DefaultWriterQoS(), nil)
		r := f.reader(qos, nil)

		require.NoError(t, w.Write([]byte(`1`)))
		require.NoError(t, w.Write([]byte(`2`)))
		require.NoError(t, w.Write([]byte(`3`)))

		for _, want := range [][]byte{[]byte(`1`), []byte(`2`), []byte(`3`)} {
			got, _, err := r.TakeNextSample()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestEndpointTeardown(t *testing.T) {
	t.Run("writer close unmatches the reader", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		rRec := newMatchRecorder()
		pe, err := f.participant.CreatePublisher()
		require.NoError(t, err)
		w, err := pe.CreateWriter(f.topic, contracts.DefaultWriterQoS(), nil)
		require.NoError(t, err)
		f.reader(contracts.DefaultReaderQoS(), rRec)

		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, rRec.next(t))

		require.NoError(t, pe.DeleteWriter(w))
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 0, CurrentCountChange: -1}, rRec.next(t))
	})

	t.Run("closed writer rejects writes", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		pe, err := f.participant.CreatePublisher()
		require.NoError(t, err)
		w, err := pe.CreateWriter(f.topic, contracts.DefaultWriterQoS(), nil)
		require.NoError(t, err)
		require.NoError(t, pe.DeleteWriter(w))

		assert.ErrorIs(t, w.Write([]byte(`1`)), contracts.ErrEndpointClosed)
	})

	t.Run("closed reader rejects takes", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		se, err := f.participant.CreateSubscriber()
		require.NoError(t, err)
		r, err := se.CreateReader(f.topic, contracts.DefaultReaderQoS(), nil)
		require.NoError(t, err)
		require.NoError(t, se.DeleteReader(r))

		_, _, err = r.TakeNextSample()
		assert.ErrorIs(t, err, contracts.ErrEndpointClosed)
	})

	t.Run("double delete reports an unknown entity", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		pe, err := f.participant.CreatePublisher()
		require.NoError(t, err)
		w, err := pe.CreateWriter(f.topic, contracts.DefaultWriterQoS(), nil)
		require.NoError(t, err)

		require.NoError(t, pe.DeleteWriter(w))
		assert.ErrorIs(t, pe.DeleteWriter(w), contracts.ErrUnknownEntity)
	})

	t.Run("participant close force-closes straggling endpoints", func(t *testing.T) {
		e := quietEngine()
		f := newFixture(t, e, 0, "chatter")

		rRec := newMatchRecorder()
		other := newFixture(t, e, 0, "chatter")
		other.reader(contracts.DefaultReaderQoS(), rRec)

		f.writer(contracts.DefaultWriterQoS(), nil)
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 1, CurrentCountChange: 1}, rRec.next(t))

		require.NoError(t, f.participant.Close())
		assert.Equal(t, contracts.MatchStatus{CurrentCount: 0, CurrentCountChange: -1}, rRec.next(t))
	})
}
