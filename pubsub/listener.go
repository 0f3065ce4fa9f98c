package pubsub

import (
	"errors"

	"github.com/radarlink/dds-go/contracts"
)

// edgeTransition turns one raw peer-count event into an edge-triggered
// "any peer present" signal. It fires true exactly on the transition from
// zero to one-or-more peers (the just-applied delta equals the new count),
// false exactly on the transition back to zero, and stays silent for
// everything in between. A peer dropping while others remain is not a
// transition.
func edgeTransition(status contracts.MatchStatus) (matched, fire bool) {
	switch {
	case status.CurrentCount > 0 && status.CurrentCountChange == status.CurrentCount:
		return true, true
	case status.CurrentCount == 0 && status.CurrentCountChange < 0:
		return false, true
	default:
		return false, false
	}
}

// writerMatchBridge translates publication-matched events into the
// publisher's match callback. It holds a non-owning back reference to the
// endpoint; the endpoint deletes the writer (and with it the engine's
// hold on the bridge) before releasing itself.
type writerMatchBridge[T any] struct {
	pub *Publisher[T]
}

func (b *writerMatchBridge[T]) OnPublicationMatched(_ Writer, status contracts.MatchStatus) {
	if matched, fire := edgeTransition(status); fire {
		b.pub.onMatch(b.pub, matched)
	}
}

// readerBridge translates subscription-matched and data-available events
// into the subscriber's callbacks. Events can arrive as soon as the
// reader entity is live, possibly before NewSubscriber returns; the
// bridge therefore uses the Reader handed in by the engine instead of the
// not-yet-assigned endpoint field.
type readerBridge[T any] struct {
	sub *Subscriber[T]
}

func (b *readerBridge[T]) OnSubscriptionMatched(_ Reader, status contracts.MatchStatus) {
	if b.sub.onMatch == nil {
		return
	}
	if matched, fire := edgeTransition(status); fire {
		b.sub.onMatch(matched)
	}
}

// OnDataAvailable takes buffered samples and forwards valid ones to the
// data callback. Failed takes and lifecycle-only samples (metadata with
// no valid payload) are dropped silently: they are not application data
// loss. By default all currently buffered samples are drained so that
// coalesced notifications cannot starve the reader; WithSingleTakePerNotify
// restores one take per notification.
func (b *readerBridge[T]) OnDataAvailable(r Reader) {
	for {
		payload, info, err := r.TakeNextSample()
		if err != nil {
			if !errors.Is(err, contracts.ErrNoData) {
				b.sub.logger.Debug("take failed", "topic", b.sub.Topic(), "error", err)
			}
			return
		}
		if info.ValidData {
			data, err := b.sub.ts.Unmarshal(payload)
			if err != nil {
				b.sub.logger.Error("failed to unmarshal sample",
					"topic", b.sub.Topic(),
					"type", b.sub.ts.Name(),
					"error", err,
				)
			} else {
				b.sub.onData(data)
			}
		}
		if b.sub.singleTake {
			return
		}
	}
}
