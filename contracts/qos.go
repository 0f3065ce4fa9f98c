package contracts

// DomainID identifies an isolated communication domain. Participants in
// different domains never discover each other.
type DomainID int

// DefaultDomain is the domain used when the caller does not care about
// domain isolation.
const DefaultDomain DomainID = 0

// Reliability is the delivery guarantee class of a writer or reader.
type Reliability int

const (
	// Reliable delivery may retransmit and must not drop samples between
	// matched endpoints.
	Reliable Reliability = iota
	// BestEffort delivery never retransmits and may drop samples.
	BestEffort
)

// String returns the policy name.
func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "RELIABLE"
	case BestEffort:
		return "BEST_EFFORT"
	default:
		return "UNKNOWN"
	}
}

// CompatibleWith reports whether a writer with reliability r can match a
// reader with reliability reader. A reliable writer serves both reader
// modes; a best-effort writer cannot satisfy a reliable reader.
func (r Reliability) CompatibleWith(reader Reliability) bool {
	if r == BestEffort && reader == Reliable {
		return false
	}
	return true
}

// MemoryPolicy controls per-sample buffer management on an endpoint.
type MemoryPolicy int

const (
	// PreallocatedWithFallback preallocates sample buffers up to the
	// history depth and reallocates for occasional oversize samples.
	PreallocatedWithFallback MemoryPolicy = iota
	// Dynamic allocates every sample on demand.
	Dynamic
)

// ParticipantQoS configures a domain participant.
type ParticipantQoS struct {
	// InitialAnnouncements is the number of discovery announcements sent
	// when the participant comes up. The default is deliberately high: a
	// handful of announcements is often not enough for peers to converge
	// when nearing full bandwidth load.
	InitialAnnouncements int
}

// DefaultParticipantQoS returns the participant defaults.
func DefaultParticipantQoS() ParticipantQoS {
	return ParticipantQoS{InitialAnnouncements: 150}
}

// TopicQoS configures a topic entity. Topics currently carry no tunables
// beyond the engine defaults; the type exists so the creation contract can
// grow without breaking callers.
type TopicQoS struct{}

// DefaultTopicQoS returns the topic defaults.
func DefaultTopicQoS() TopicQoS {
	return TopicQoS{}
}

// EndpointQoS configures a data writer or data reader.
type EndpointQoS struct {
	Reliability  Reliability
	MemoryPolicy MemoryPolicy
	// HistoryDepth bounds the number of samples buffered per reader
	// before the reliability policy decides between backpressure
	// (reliable) and dropping (best effort).
	HistoryDepth int
}

// DefaultWriterQoS returns the writer defaults: reliable delivery with
// preallocated sample buffers.
func DefaultWriterQoS() EndpointQoS {
	return EndpointQoS{
		Reliability:  Reliable,
		MemoryPolicy: PreallocatedWithFallback,
		HistoryDepth: 16,
	}
}

// DefaultReaderQoS returns the reader defaults. Readers default to best
// effort, intentionally asymmetric from writers: the subscribing side is
// commonly the more tolerant one.
func DefaultReaderQoS() EndpointQoS {
	return EndpointQoS{
		Reliability:  BestEffort,
		MemoryPolicy: PreallocatedWithFallback,
		HistoryDepth: 16,
	}
}
