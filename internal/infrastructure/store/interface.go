package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/domain/product"
)

// OrderWriter runs the order write path inside a single transaction.
type OrderWriter interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx OrderTx) error) error
}

// OrderTx is the set of writes allowed inside an order transaction.
type OrderTx interface {
	// InsertOrder stores o and assigns its ID and CreatedAt.
	InsertOrder(ctx context.Context, o *order.Order) error
	// InsertItems stores every item of orderID in one statement and assigns item IDs.
	InsertItems(ctx context.Context, orderID string, items []order.OrderItem) error
	ScheduleReconcile(ctx context.Context, job ReconcileJob) error
}

// OrderReader is the read path of the order view model.
type OrderReader interface {
	ListByUser(ctx context.Context, userID string, sort order.SortOrder) ([]order.Order, error)
	// ItemsForOrders returns the items of the given orders joined with product names.
	ItemsForOrders(ctx context.Context, orderIDs []string) ([]order.OrderItem, error)
	ListAll(ctx context.Context) ([]order.Order, error)
}

// OrderStatusStore performs guarded status transitions outside the reconciliation worker.
type OrderStatusStore interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	// TransitionStatus sets status to `to` only when it currently is `from`.
	TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error)
}

type ProductStore interface {
	GetProduct(ctx context.Context, productID string) (product.Product, error)
}

// LogStore is the append-only audit log.
type LogStore interface {
	Append(ctx context.Context, entry order.LogEntry) error
}

type JobState string

const (
	JobScheduled JobState = "scheduled"
	JobDone      JobState = "done"
	JobSkipped   JobState = "skipped"
)

// ReconcileJob is the durable record of the deferred completion of one order.
type ReconcileJob struct {
	OrderID          string          `json:"order_id"`
	Payload          json.RawMessage `json:"payload"`
	RunAt            time.Time       `json:"run_at"`
	State            JobState        `json:"state"`
	Attempts         int             `json:"attempts"`
	CreatedLogged    bool            `json:"created_logged"`
	CompletionLogged bool            `json:"completion_logged"`
	LastError        string          `json:"last_error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// JobStore is the queue polled by the reconciliation worker.
type JobStore interface {
	// UnloggedJobs returns jobs whose creation entry has not been written yet.
	UnloggedJobs(ctx context.Context, limit int) ([]ReconcileJob, error)
	MarkCreationLogged(ctx context.Context, orderID string) error
	// UnloggedCompletions returns done jobs whose status entry has not been written yet.
	UnloggedCompletions(ctx context.Context, limit int) ([]ReconcileJob, error)
	MarkCompletionLogged(ctx context.Context, orderID string) error
	// ClaimDue locks one scheduled job with RunAt <= now. ok is false when none is due.
	ClaimDue(ctx context.Context, now time.Time) (claim JobClaim, ok bool, err error)
	// RecordFailure bumps attempts and reschedules the job, or skips it when giveUp is set.
	RecordFailure(ctx context.Context, orderID string, runAt time.Time, cause string, giveUp bool) error
}

// JobClaim holds the lock on a claimed job until Finish or Abort.
type JobClaim interface {
	Job() ReconcileJob
	TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error)
	// Finish stores the final job state and commits together with any transition.
	Finish(ctx context.Context, state JobState, note string) error
	// Reschedule moves the job to runAt and commits.
	Reschedule(ctx context.Context, runAt time.Time) error
	// Abort rolls back; the job stays scheduled.
	Abort() error
}
