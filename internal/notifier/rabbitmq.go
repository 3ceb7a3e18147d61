// Package notifier hands newly stored items to the outside world.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feedsync/internal/domain"
)

const ActionCreated = "created"

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// Config describes the broker topology: one durable exchange and one
// durable queue bound to it under RoutingKey.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
	RoutingKey   string
	QueueName    string
}

// DefaultExchangeType is used when Config.ExchangeType is empty.
const DefaultExchangeType = amqp.ExchangeDirect

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = DefaultExchangeType
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"exchange_type", cfg.ExchangeType,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "rabbitmq"),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	// durable, not auto-deleted, not internal, wait for confirmation
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s exchange %q: %w", cfg.ExchangeType, cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", cfg.QueueName, err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", q.Name, err)
	}
	return nil
}

// ItemsMessage is the body published for every cycle that stored items.
type ItemsMessage struct {
	Action    string        `json:"action"`
	Items     []domain.Item `json:"items"`
	Count     int           `json:"count"`
	Timestamp time.Time     `json:"timestamp"`
}

// Notify publishes all items of a cycle as one persistent message.
func (r *RabbitMQ) Notify(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}

	msg := ItemsMessage{
		Action:    ActionCreated,
		Items:     items,
		Count:     len(items),
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published items", "count", len(items))

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
