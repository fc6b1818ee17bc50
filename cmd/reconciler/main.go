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

	"github.com/example/storefront-orders/internal/config"
	"github.com/example/storefront-orders/internal/infrastructure/changefeed"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/metrics"
	"github.com/example/storefront-orders/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("[Reconciler] %v", err)
	}

	log.Println("[Reconciler] ========================================")
	log.Println("[Reconciler] Storefront Orders - Status Reconciler")
	log.Println("[Reconciler] ========================================")
	log.Printf("[Reconciler] Completion delay: %s", cfg.CompletionDelay)
	log.Printf("[Reconciler] Poll interval: %s", cfg.PollInterval)
	log.Printf("[Reconciler] Max attempts: %d", cfg.MaxAttempts)

	if cfg.RunMigrations {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("[Reconciler] Failed to run migrations: %v", err)
		}
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[Reconciler] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	logs, err := openLogStore(ctx, cfg, db)
	if err != nil {
		log.Fatalf("[Reconciler] Failed to open audit log: %v", err)
	}

	feed, err := changefeed.NewPublisher(cfg)
	if err != nil {
		log.Fatalf("[Reconciler] Failed to open change feed: %v", err)
	}
	var publisher reconcile.Publisher
	if feed != nil {
		defer feed.Close()
		publisher = feed
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	worker := reconcile.NewWorker(store.NewPostgresJobStore(db), logs, publisher, metrics.NewReconcileMetrics(reg), reconcile.Config{
		CompletionDelay: cfg.CompletionDelay,
		PollInterval:    cfg.PollInterval,
		RetryBackoff:    cfg.RetryBackoff,
		MaxAttempts:     cfg.MaxAttempts,
		BatchSize:       cfg.BatchSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Printf("[Reconciler] Metrics on %s/metrics", cfg.MetricsAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("[Reconciler] %v", err)
	}
}

func openLogStore(ctx context.Context, cfg config.Config, db *sql.DB) (store.LogStore, error) {
	if cfg.LogStore != config.LogStoreDynamoDB {
		return store.NewPostgresLogStore(db), nil
	}
	client, err := store.NewDynamoClient(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewDynamoLogStore(client, cfg.DynamoLogTable), nil
}
