package changefeed

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/infrastructure/kafka"
	"github.com/example/storefront-orders/internal/infrastructure/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler receives one message of the change feed.
type Handler = func(ctx context.Context, key, value []byte) error

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// NewPublisher returns the publisher selected by CHANGE_FEED, or nil when the
// feed is disabled.
func NewPublisher(cfg config.Config) (Publisher, error) {
	switch cfg.ChangeFeed {
	case config.FeedKafka:
		log.Printf("[ChangeFeed] Publishing to Kafka topic %s", cfg.KafkaTopic)
		return kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case config.FeedRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		p, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExch)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		log.Printf("[ChangeFeed] Publishing to RabbitMQ exchange %s", cfg.RabbitMQExch)
		return &rabbitPublisher{Publisher: p, conn: conn}, nil
	case config.FeedNone:
		log.Printf("[ChangeFeed] Disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown change feed %q", cfg.ChangeFeed)
	}
}

// NewConsumer returns a consumer of the feed for group. Replicas sharing a
// group split the messages; an empty group receives every message.
func NewConsumer(cfg config.Config, group string) (Consumer, error) {
	switch cfg.ChangeFeed {
	case config.FeedKafka:
		latest := group == ""
		if latest {
			// a private group so this process sees every partition
			group = cfg.KafkaTopic + "-" + uuid.NewString()
		}
		log.Printf("[ChangeFeed] Consuming Kafka topic %s as group %s", cfg.KafkaTopic, group)
		return kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, group, latest), nil
	case config.FeedRabbitMQ:
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		c, err := rabbitmq.NewConsumer(conn, cfg.RabbitMQExch, group)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &rabbitConsumer{Consumer: c, conn: conn}, nil
	case config.FeedNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown change feed %q", cfg.ChangeFeed)
	}
}

type rabbitPublisher struct {
	*rabbitmq.Publisher
	conn *amqp.Connection
}

func (p *rabbitPublisher) Close() error {
	return errors.Join(p.Publisher.Close(), p.conn.Close())
}

type rabbitConsumer struct {
	*rabbitmq.Consumer
	conn *amqp.Connection
}

func (c *rabbitConsumer) Close() error {
	return errors.Join(c.Consumer.Close(), c.conn.Close())
}
