package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarlink/dds-go/contracts"
)

func TestAnnouncementCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := announcement{
			ParticipantID: "p-1",
			EndpointID:    "e-1",
			Kind:          kindWriter,
			Topic:         "chatter",
			TypeName:      "std_msgs::String",
			Reliability:   contracts.Reliable.String(),
			Action:        actionAnnounce,
		}

		body, err := encodeAnnouncement(in)
		require.NoError(t, err)

		out, err := decodeAnnouncement(body)
		require.NoError(t, err)
		assert.Equal(t, in, out)
		assert.Equal(t, contracts.Reliable, out.reliability())
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := decodeAnnouncement([]byte("{not json"))
		assert.Error(t, err)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := decodeAnnouncement([]byte(`{"kind":"observer","action":"announce"}`))
		assert.Error(t, err)
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		_, err := decodeAnnouncement([]byte(`{"kind":"writer","action":"hello"}`))
		assert.Error(t, err)
	})

	t.Run("unknown reliability falls back to reliable", func(t *testing.T) {
		a := announcement{Reliability: "EXOTIC"}
		assert.Equal(t, contracts.Reliable, a.reliability())
	})
}

func TestExchangeNames(t *testing.T) {
	assert.Equal(t, "dds.discovery.0", discoveryExchange(0))
	assert.Equal(t, "dds.data.42", dataExchange(42))
}
