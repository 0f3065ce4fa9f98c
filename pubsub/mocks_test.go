package pubsub

import (
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/radarlink/dds-go/contracts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock Engine
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) CreateParticipant(d contracts.DomainID, q contracts.ParticipantQoS) (Participant, error) {
	args := m.Called(d, q)
	if p, ok := args.Get(0).(Participant); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// Mock Participant
type mockParticipant struct {
	mock.Mock
}

func (m *mockParticipant) RegisterType(typeName string) error {
	return m.Called(typeName).Error(0)
}

func (m *mockParticipant) CreateTopic(name, typeName string, qos contracts.TopicQoS) (Topic, error) {
	args := m.Called(name, typeName, qos)
	if t, ok := args.Get(0).(Topic); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockParticipant) DeleteTopic(t Topic) error {
	return m.Called(t).Error(0)
}

func (m *mockParticipant) CreatePublisher() (PublisherEntity, error) {
	args := m.Called()
	if p, ok := args.Get(0).(PublisherEntity); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockParticipant) DeletePublisher(p PublisherEntity) error {
	return m.Called(p).Error(0)
}

func (m *mockParticipant) CreateSubscriber() (SubscriberEntity, error) {
	args := m.Called()
	if s, ok := args.Get(0).(SubscriberEntity); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockParticipant) DeleteSubscriber(s SubscriberEntity) error {
	return m.Called(s).Error(0)
}

func (m *mockParticipant) Close() error {
	return m.Called().Error(0)
}

// Mock topic (plain value, not a mock: tests only need identity)
type stubTopic struct {
	name     string
	typeName string
}

func (t *stubTopic) Name() string     { return t.name }
func (t *stubTopic) TypeName() string { return t.typeName }

// Mock PublisherEntity
type mockPubEntity struct {
	mock.Mock
}

func (m *mockPubEntity) CreateWriter(t Topic, qos contracts.EndpointQoS, l WriterListener) (Writer, error) {
	args := m.Called(t, qos, l)
	if w, ok := args.Get(0).(Writer); ok {
		return w, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPubEntity) DeleteWriter(w Writer) error {
	return m.Called(w).Error(0)
}

// Mock SubscriberEntity
type mockSubEntity struct {
	mock.Mock
}

func (m *mockSubEntity) CreateReader(t Topic, qos contracts.EndpointQoS, l ReaderListener) (Reader, error) {
	args := m.Called(t, qos, l)
	if r, ok := args.Get(0).(Reader); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubEntity) DeleteReader(r Reader) error {
	return m.Called(r).Error(0)
}

// Mock Writer
type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(payload []byte) error {
	return m.Called(payload).Error(0)
}

// queueReader is a hand-rolled Reader backed by a fixed sample queue.
type queueReader struct {
	samples []struct {
		payload []byte
		info    contracts.SampleInfo
	}
	takeErr error
}

func (r *queueReader) push(payload []byte, valid bool) {
	r.samples = append(r.samples, struct {
		payload []byte
		info    contracts.SampleInfo
	}{payload, contracts.SampleInfo{ValidData: valid}})
}

func (r *queueReader) TakeNextSample() ([]byte, contracts.SampleInfo, error) {
	if r.takeErr != nil {
		return nil, contracts.SampleInfo{}, r.takeErr
	}
	if len(r.samples) == 0 {
		return nil, contracts.SampleInfo{}, contracts.ErrNoData
	}
	s := r.samples[0]
	r.samples = r.samples[1:]
	return s.payload, s.info, nil
}

// newTestParticipant wires a mockParticipant into a handle the way
// NewDomainParticipant would.
func newTestParticipant(entity Participant) *ParticipantHandle {
	return &ParticipantHandle{
		entity: entity,
		logger: discardLogger(),
		refs:   1,
		types:  make(map[string]struct{}),
	}
}
