package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialAttempts = 5
	dialBackoff  = time.Second
)

// RabbitMQPublisher publishes events to a durable topic exchange, routed by
// event type.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitMQPublisher connects to url, retrying with exponential backoff,
// and declares the exchange.
func NewRabbitMQPublisher(url, exchange string, log *slog.Logger) (*RabbitMQPublisher, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	wait := dialBackoff
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("RabbitMQ connection attempt failed",
			slog.Int("attempt", attempt),
			slog.Duration("retryIn", wait),
			"err", err)
		if attempt < dialAttempts {
			time.Sleep(wait)
			wait *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	log.Info("Connected to RabbitMQ", slog.String("exchange", exchange))

	return &RabbitMQPublisher{
		conn:     conn,
		exchange: exchange,
		log:      log,
		channel:  channel,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		string(e.Type),
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID,
			Body:         body,
			Timestamp:    e.Time,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		p.log.Warn("Failed to close RabbitMQ channel", "err", err)
	}
	return p.conn.Close()
}
