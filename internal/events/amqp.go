package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Broker publishes raw event bodies under a routing key.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// AMQPBroker publishes persistent JSON messages to a durable topic exchange.
type AMQPBroker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func DialAMQP(url, exchange string) (*AMQPBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: exchange declare failed: %w", err)
	}

	return &AMQPBroker{conn: conn, ch: ch, exchange: exchange}, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ch.PublishWithContext(ctx,
		b.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Forward relays the given event types from the bus to the broker, using the
// event type as routing key. Broker failures are logged and never reach the
// publisher.
func Forward(bus *EventBus, broker Broker, timeout time.Duration, logger *zerolog.Logger, eventTypes ...string) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, func(event *Event) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := broker.Publish(ctx, event.Type, event.Payload); err != nil {
				logger.Warn().Err(err).Str("event_type", event.Type).Msg("rabbitmq: publish failed")
			}
			return nil
		})
	}
}
