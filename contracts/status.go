package contracts

import "time"

// MatchStatus describes one discovery transition on an endpoint.
// CurrentCount is the number of currently matched remote peers after the
// transition; CurrentCountChange is the delta this event applied.
type MatchStatus struct {
	CurrentCount       int
	CurrentCountChange int
}

// SampleInfo carries per-sample metadata delivered alongside a taken
// sample.
type SampleInfo struct {
	// ValidData is false for lifecycle markers (for example a writer
	// disposing an instance) that carry no application payload.
	ValidData bool
	// PublicationID identifies the writer the sample originated from,
	// when the engine knows it.
	PublicationID string
	// Timestamp is the engine's reception timestamp.
	Timestamp time.Time
}
