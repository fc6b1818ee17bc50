package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/email"
	"github.com/example/storefront-orders/internal/infrastructure/changefeed"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/notification"
)

const consumerGroup = "email-notifier"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	log.Println("[Notifier] ========================================")
	log.Println("[Notifier] Storefront Orders - Email Notification Service")
	log.Println("[Notifier] ========================================")
	log.Printf("[Notifier] Change feed: %s", cfg.ChangeFeed)
	log.Printf("[Notifier] Group: %s", consumerGroup)
	log.Printf("[Notifier] SMTP: %s:%s", cfg.SMTPHost, cfg.SMTPPort)
	log.Printf("[Notifier] From: %s", cfg.SMTPFrom)

	if cfg.ChangeFeed == config.FeedNone {
		log.Fatal("[Notifier] CHANGE_FEED must be kafka or rabbitmq")
	}

	// Order items are read for confirmation emails.
	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Notifier] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	emailSvc := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	handler := notification.NewHandler(emailSvc, store.NewPostgresOrderStore(db))

	group := consumerGroup
	if cfg.ChangeFeed == config.FeedRabbitMQ && cfg.RabbitMQQueue != "" {
		group = cfg.RabbitMQQueue
	}
	consumer, err := changefeed.NewConsumer(cfg, group)
	if err != nil {
		log.Fatalf("[Notifier] Failed to subscribe to change feed: %v", err)
	}
	defer consumer.Close()

	log.Println("[Notifier] Starting event consumer...")
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
		log.Fatalf("[Notifier] Consumer error: %v", err)
	}
	log.Println("[Notifier] Shutting down...")
}
