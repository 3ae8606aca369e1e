package service

import (
	"time"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/logger"
)

const eventsExchange = "numbers.events"

// EventBroker is the messaging surface the publisher needs; satisfied by
// messaging.RabbitMQ.
type EventBroker interface {
	DeclareExchange(name, kind string) error
	Publish(exchange, routingKey string, message interface{}) error
}

// NumberEvent is the payload published for each lifecycle transition.
type NumberEvent struct {
	ActivationID string              `json:"activation_id"`
	UserID       string              `json:"user_id"`
	PhoneNumber  string              `json:"phone_number"`
	Service      string              `json:"service"`
	Country      string              `json:"country"`
	Status       models.NumberStatus `json:"status"`
	Cost         float64             `json:"cost"`
	Refunded     float64             `json:"refunded"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// EventPublisher emits number lifecycle events on a topic exchange. A nil
// publisher is valid and drops everything; event delivery is best-effort and
// never blocks the operation that triggered it.
type EventPublisher struct {
	broker EventBroker
	log    logger.Logger
}

func NewEventPublisher(broker EventBroker, log logger.Logger) (*EventPublisher, error) {
	if broker == nil {
		return &EventPublisher{log: log}, nil
	}

	if err := broker.DeclareExchange(eventsExchange, "topic"); err != nil {
		return nil, err
	}

	return &EventPublisher{broker: broker, log: log}, nil
}

func (p *EventPublisher) NumberPurchased(record *models.NumberRecord) {
	p.publish("number.purchased", record, 0)
}

func (p *EventPublisher) NumberCancelled(record *models.NumberRecord, refunded float64) {
	p.publish("number.cancelled", record, refunded)
}

func (p *EventPublisher) NumberSwept(record *models.NumberRecord, refunded float64) {
	p.publish("number.swept", record, refunded)
}

func (p *EventPublisher) publish(routingKey string, record *models.NumberRecord, refunded float64) {
	if p == nil || p.broker == nil {
		return
	}

	event := NumberEvent{
		ActivationID: record.ActivationID,
		UserID:       record.UserID.Hex(),
		PhoneNumber:  record.PhoneNumber,
		Service:      record.Service,
		Country:      record.Country,
		Status:       record.Status,
		Cost:         record.Cost,
		Refunded:     refunded,
		OccurredAt:   time.Now(),
	}

	if err := p.broker.Publish(eventsExchange, routingKey, event); err != nil {
		p.log.Warn("Failed to publish number event",
			logger.Field{Key: "routing_key", Value: routingKey},
			logger.Field{Key: "activation_id", Value: record.ActivationID},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}
