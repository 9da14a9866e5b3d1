package publisher

import (
	"encoding/json"
	"fmt"
	"log"
)

// Conn is the publishing half of the NATS client.
type Conn interface {
	Publish(subject string, data []byte) error
}

type EventPublisher struct {
	nats Conn
}

func NewEventPublisher(nats Conn) *EventPublisher {
	return &EventPublisher{nats: nats}
}

// Publish encodes event as JSON and publishes it on subject.
func (p *EventPublisher) Publish(subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if err := p.nats.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}

	log.Printf("Published event: %s", subject)
	return nil
}
