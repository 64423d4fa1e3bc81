package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/service"
)

const publishTimeout = 5 * time.Second

type envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func encode(event service.Event, now time.Time) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s", event.Type())
	}
	return json.Marshal(envelope{
		ID:         uuid.NewString(),
		Type:       event.Type(),
		OccurredAt: now,
		Payload:    payload,
	})
}

// AMQPDispatcher publishes events to a topic exchange, routed by event type.
type AMQPDispatcher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPDispatcher(url, exchange string) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &AMQPDispatcher{conn: conn, channel: channel, exchange: exchange}, nil
}

func (d *AMQPDispatcher) Dispatch(event service.Event) error {
	now := time.Now().UTC()
	body, err := encode(event, now)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channel.PublishWithContext(ctx, d.exchange, event.Type(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type(),
		Timestamp:    now,
		Body:         body,
	})
}

func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.channel.Close(); err != nil {
		log.WithError(err).Warn("close amqp channel")
	}
	return d.conn.Close()
}

// LogDispatcher only logs events; used when no broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(event service.Event) error {
	body, err := encode(event, time.Now().UTC())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"event": event.Type(), "body": string(body)}).Info("event dispatched")
	return nil
}
