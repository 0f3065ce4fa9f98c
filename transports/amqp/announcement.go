package amqp

import (
	"encoding/json"
	"fmt"

	"github.com/radarlink/dds-go/contracts"
)

const (
	kindWriter = "writer"
	kindReader = "reader"

	actionAnnounce = "announce"
	actionRetire   = "retire"
)

// announcement is the discovery message exchanged between participants.
type announcement struct {
	ParticipantID string `json:"participantId"`
	EndpointID    string `json:"endpointId"`
	Kind          string `json:"kind"`
	Topic         string `json:"topic"`
	TypeName      string `json:"typeName"`
	Reliability   string `json:"reliability"`
	Action        string `json:"action"`
}

func (a announcement) reliability() contracts.Reliability {
	if a.Reliability == contracts.BestEffort.String() {
		return contracts.BestEffort
	}
	return contracts.Reliable
}

func encodeAnnouncement(a announcement) ([]byte, error) {
	return json.Marshal(a)
}

func decodeAnnouncement(body []byte) (announcement, error) {
	var a announcement
	if err := json.Unmarshal(body, &a); err != nil {
		return announcement{}, fmt.Errorf("amqp: invalid announcement: %w", err)
	}
	switch a.Kind {
	case kindWriter, kindReader:
	default:
		return announcement{}, fmt.Errorf("amqp: invalid announcement kind %q", a.Kind)
	}
	switch a.Action {
	case actionAnnounce, actionRetire:
	default:
		return announcement{}, fmt.Errorf("amqp: invalid announcement action %q", a.Action)
	}
	return a, nil
}

func discoveryExchange(domain contracts.DomainID) string {
	return fmt.Sprintf("dds.discovery.%d", domain)
}

func dataExchange(domain contracts.DomainID) string {
	return fmt.Sprintf("dds.data.%d", domain)
}
