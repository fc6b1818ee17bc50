package rabbitmq

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

type MessageHandler = func(ctx context.Context, key, value []byte) error

// Consumer reads the exchange through its own queue. A named queue is durable
// and shared by every replica of a consumer group; an empty name gives each
// process a private queue that disappears with it.
type Consumer struct {
	ch       *amqp.Channel
	exchange string
	queue    string
}

func NewConsumer(conn *amqp.Connection, exchange, queue string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	durable, exclusive := queue != "", queue == ""
	q, err := ch.QueueDeclare(
		queue,
		durable,
		!durable, // autoDelete
		exclusive,
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{ch: ch, exchange: exchange, queue: q.Name}, nil
}

// Consume hands every delivery to handler until ctx is cancelled or the
// channel closes.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	msgs, err := c.ch.ConsumeWithContext(
		ctx,
		c.queue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("deliveries channel of queue %s closed", c.queue)
			}
			handleDelivery(ctx, msg, handler)
		}
	}
}

// handleDelivery acks handled messages and drops the ones the handler rejects.
func handleDelivery(ctx context.Context, msg amqp.Delivery, handler MessageHandler) {
	if err := handler(ctx, []byte(msg.RoutingKey), msg.Body); err != nil {
		log.Printf("[RabbitMQ] Error handling message %d: %v", msg.DeliveryTag, err)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
