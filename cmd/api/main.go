package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront-orders/internal/api"
	"github.com/example/storefront-orders/internal/auth"
	"github.com/example/storefront-orders/internal/command"
	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/domain/cart"
	"github.com/example/storefront-orders/internal/infrastructure/changefeed"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/metrics"
	"github.com/example/storefront-orders/internal/notification"
	"github.com/example/storefront-orders/internal/query"
	"github.com/example/storefront-orders/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("[API] %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] Storefront Orders - HTTP API")
	log.Println("[API] ========================================")
	log.Printf("[API] Change feed: %s", cfg.ChangeFeed)
	log.Printf("[API] Audit log: %s", cfg.LogStore)
	log.Printf("[API] Completion delay: %s", cfg.CompletionDelay)

	if cfg.RunMigrations {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("[API] Failed to run migrations: %v", err)
		}
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[API] Connected to PostgreSQL")

	logs, err := openLogStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("[API] Failed to open audit log: %v", err)
	}
	orders := store.NewPostgresOrderStore(db)
	carts := cart.NewService(store.NewPostgresCartStore(db))

	hub := realtime.NewHub(16)

	var publisher command.ChangePublisher = realtime.NewLocalPublisher(hub)
	feed, err := changefeed.NewPublisher(cfg)
	if err != nil {
		log.Fatalf("[API] Failed to open change feed: %v", err)
	}
	if feed != nil {
		defer feed.Close()
		publisher = feed
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cmdHandler := command.NewHandler(command.Deps{
		Carts:     carts,
		Products:  store.NewPostgresProductStore(db),
		Orders:    orders,
		Statuses:  orders,
		Logs:      logs,
		Publisher: publisher,
		Notifier:  notification.Sinks{notification.LogSink{}, hub},
		Metrics:   metrics.NewCheckoutMetrics(reg),
	}, command.Config{StepTimeout: cfg.StepTimeout, CompletionDelay: cfg.CompletionDelay})
	queryHandler := query.NewHandler(orders, carts, cfg.StepTimeout)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	router := api.NewRouter(api.RouterConfig{
		Handlers:   api.NewHandlers(cmdHandler, queryHandler, hub),
		JWTService: jwtService,
		Metrics:    metrics.NewServerMetrics(reg, "api"),
		Gatherer:   reg,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Changes made by other replicas and by the reconciler reach the open
	// streams of this replica through the feed.
	consumer, err := changefeed.NewConsumer(cfg, cfg.KafkaGroup)
	if err != nil {
		log.Fatalf("[API] Failed to subscribe to change feed: %v", err)
	}
	if consumer != nil {
		defer consumer.Close()
		g.Go(func() error {
			log.Println("[API] Starting change feed consumer...")
			if err := consumer.Consume(gctx, hub.HandleEvent); err != nil && gctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Printf("[API] Server started on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("[API] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("[API] %v", err)
	}
	log.Println("[API] Stopped")
}

func openLogStore(ctx context.Context, cfg config.Config, db *sql.DB) (store.LogStore, error) {
	if cfg.LogStore != config.LogStoreDynamoDB {
		return store.NewPostgresLogStore(db), nil
	}
	client, err := store.NewDynamoClient(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("[API] Appending audit entries to DynamoDB table %s", cfg.DynamoLogTable)
	return store.NewDynamoLogStore(client, cfg.DynamoLogTable), nil
}
