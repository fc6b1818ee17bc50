package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
	"github.com/example/storefront-orders/internal/metrics"
)

// Publisher publishes order changes on the change feed.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Config struct {
	// CompletionDelay is the minimum age of an order before it is completed.
	CompletionDelay time.Duration
	PollInterval    time.Duration
	// RetryBackoff is multiplied by the attempt count after a failure.
	RetryBackoff time.Duration
	MaxAttempts  int
	BatchSize    int
}

// Worker completes pending orders once their delay has elapsed and keeps the
// audit log in step with every transition it performs.
type Worker struct {
	jobs      store.JobStore
	logs      store.LogStore
	publisher Publisher
	metrics   *metrics.ReconcileMetrics
	cfg       Config
	now       func() time.Time
}

func NewWorker(jobs store.JobStore, logs store.LogStore, publisher Publisher, m *metrics.ReconcileMetrics, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &Worker{
		jobs:      jobs,
		logs:      logs,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[Reconciler] Started (delay %s, poll %s)", w.cfg.CompletionDelay, w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[Reconciler] Tick failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Printf("[Reconciler] Stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick logs the creation of new orders and any completion still missing its
// entry, then completes every due order.
func (w *Worker) Tick(ctx context.Context) error {
	if err := w.logCreated(ctx); err != nil {
		return err
	}
	if err := w.logCompleted(ctx); err != nil {
		return err
	}
	for i := 0; i < w.cfg.BatchSize; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		more, err := w.completeNext(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (w *Worker) logCreated(ctx context.Context) error {
	jobs, err := w.jobs.UnloggedJobs(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list unlogged jobs: %w", err)
	}
	for _, job := range jobs {
		entry, err := w.entry(order.LogOrderCreated, job, "")
		if err != nil {
			log.Printf("[Reconciler] Skipping creation entry for order %s: %v", job.OrderID, err)
			continue
		}
		if err := w.logs.Append(ctx, entry); err != nil {
			log.Printf("[Reconciler] Failed to log creation of order %s: %v", job.OrderID, err)
			continue
		}
		if err := w.jobs.MarkCreationLogged(ctx, job.OrderID); err != nil {
			// the entry is appended again on the next tick
			log.Printf("[Reconciler] Failed to mark creation of order %s as logged: %v", job.OrderID, err)
			continue
		}
		log.Printf("[Reconciler] Logged creation of order %s", job.OrderID)
	}
	return nil
}

func (w *Worker) logCompleted(ctx context.Context) error {
	jobs, err := w.jobs.UnloggedCompletions(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list unlogged completions: %w", err)
	}
	for _, job := range jobs {
		w.logCompletion(ctx, job)
	}
	return nil
}

// logCompletion writes the status entry of a completed job. A failure leaves
// the job unlogged for the next tick; the entry id keeps the retry from
// duplicating it.
func (w *Worker) logCompletion(ctx context.Context, job store.ReconcileJob) {
	entry, err := w.entry(order.LogOrderStatusChanged, job, order.StatusCompleted)
	if err != nil {
		log.Printf("[Reconciler] Skipping status entry for order %s: %v", job.OrderID, err)
		return
	}
	if err := w.logs.Append(ctx, entry); err != nil {
		log.Printf("[Reconciler] Failed to log completion of order %s: %v", job.OrderID, err)
		return
	}
	if err := w.jobs.MarkCompletionLogged(ctx, job.OrderID); err != nil {
		log.Printf("[Reconciler] Failed to mark completion of order %s as logged: %v", job.OrderID, err)
	}
}

// completeNext claims one due job. It reports whether another job may be due.
func (w *Worker) completeNext(ctx context.Context) (bool, error) {
	now := w.now()
	claim, ok, err := w.jobs.ClaimDue(ctx, now)
	if err != nil {
		return false, fmt.Errorf("claim due job: %w", err)
	}
	if !ok {
		return false, nil
	}
	job := claim.Job()

	// run_at can be moved earlier by hand; the order age is the real guard.
	if dueAt := job.CreatedAt.Add(w.cfg.CompletionDelay); !job.CreatedAt.IsZero() && dueAt.After(now) {
		if err := claim.Reschedule(ctx, dueAt); err != nil {
			return false, fmt.Errorf("reschedule job %s: %w", job.OrderID, err)
		}
		log.Printf("[Reconciler] Order %s is younger than %s, rescheduled to %s", job.OrderID, w.cfg.CompletionDelay, dueAt.Format(time.RFC3339))
		return true, nil
	}

	changed, err := claim.TransitionStatus(ctx, job.OrderID, order.StatusPending, order.StatusCompleted)
	if err != nil {
		_ = claim.Abort()
		w.fail(ctx, job, fmt.Errorf("transition order: %w", err))
		return true, nil
	}
	if !changed {
		if err := claim.Finish(ctx, store.JobSkipped, "order is no longer pending"); err != nil {
			return true, fmt.Errorf("finish job %s: %w", job.OrderID, err)
		}
		log.Printf("[Reconciler] Order %s is no longer pending, skipped", job.OrderID)
		w.metrics.Observe("skipped")
		return true, nil
	}

	// the status entry is written only once the transition has committed
	if err := claim.Finish(ctx, store.JobDone, ""); err != nil {
		return true, fmt.Errorf("finish job %s: %w", job.OrderID, err)
	}
	log.Printf("[Reconciler] Completed order %s", job.OrderID)
	w.logCompletion(ctx, job)
	w.metrics.Observe("completed")
	if !job.CreatedAt.IsZero() {
		w.metrics.ObserveLag(w.now().Sub(job.CreatedAt))
	}
	w.publishCompleted(ctx, job)
	return true, nil
}

func (w *Worker) entry(event string, job store.ReconcileJob, status order.Status) (order.LogEntry, error) {
	payload, err := order.DecodePayload(job.Payload)
	if err != nil {
		return order.LogEntry{}, err
	}
	if payload.OrderID == "" {
		payload.OrderID = job.OrderID
	}
	if status != "" {
		payload.Status = status
	}
	return order.NewOrderLogEntry(event, payload, w.now())
}

func (w *Worker) publishCompleted(ctx context.Context, job store.ReconcileJob) {
	if w.publisher == nil {
		return
	}
	payload, err := order.DecodePayload(job.Payload)
	if err != nil {
		log.Printf("[Reconciler] Cannot publish change of order %s: %v", job.OrderID, err)
		return
	}
	payload.Status = order.StatusCompleted
	change := payload.Changed(order.ChangeStatusChanged, w.now())
	if err := w.publisher.Publish(ctx, change.UserID, change); err != nil {
		log.Printf("[Reconciler] Failed to publish change of order %s: %v", job.OrderID, err)
	}
}

// fail reschedules job with a linear backoff, giving up after MaxAttempts.
func (w *Worker) fail(ctx context.Context, job store.ReconcileJob, cause error) {
	attempts := job.Attempts + 1
	giveUp := attempts >= w.cfg.MaxAttempts
	runAt := w.now().Add(w.cfg.RetryBackoff * time.Duration(attempts))

	if err := w.jobs.RecordFailure(ctx, job.OrderID, runAt, cause.Error(), giveUp); err != nil {
		log.Printf("[Reconciler] Failed to record failure of order %s: %v", job.OrderID, errors.Join(cause, err))
		return
	}
	if !giveUp {
		log.Printf("[Reconciler] Attempt %d for order %s failed, retrying at %s: %v", attempts, job.OrderID, runAt.Format(time.RFC3339), cause)
		w.metrics.Observe("retried")
		return
	}

	log.Printf("[Reconciler] Giving up on order %s after %d attempts: %v", job.OrderID, attempts, cause)
	w.metrics.Observe("failed")
	payload, err := order.DecodePayload(job.Payload)
	if err != nil {
		payload = order.Payload{OrderID: job.OrderID}
	}
	payload.Reason = cause.Error()
	entry, err := order.NewOrderLogEntry(order.LogReconcileFailed, payload, w.now())
	if err == nil {
		err = w.logs.Append(ctx, entry)
	}
	if err != nil {
		log.Printf("[Reconciler] Failed to log give-up of order %s: %v", job.OrderID, err)
	}
}
