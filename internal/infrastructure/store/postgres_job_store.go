package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
)

// PostgresJobStore keeps reconciliation jobs in the reconcile_jobs table
type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

const jobColumns = `order_id, payload, run_at, state, attempts, created_logged, completion_logged, last_error, created_at`

func scanJob(row rowScanner) (ReconcileJob, error) {
	var (
		job     ReconcileJob
		payload []byte
		state   string
	)
	if err := row.Scan(&job.OrderID, &payload, &job.RunAt, &state, &job.Attempts, &job.CreatedLogged, &job.CompletionLogged, &job.LastError, &job.CreatedAt); err != nil {
		return ReconcileJob{}, err
	}
	job.Payload = payload
	job.State = JobState(state)
	return job, nil
}

func (s *PostgresJobStore) UnloggedJobs(ctx context.Context, limit int) ([]ReconcileJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM reconcile_jobs
		 WHERE NOT created_logged
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
}

func (s *PostgresJobStore) UnloggedCompletions(ctx context.Context, limit int) ([]ReconcileJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM reconcile_jobs
		 WHERE state = $1 AND NOT completion_logged
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		string(JobDone), limit,
	)
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]ReconcileJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []ReconcileJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return jobs, nil
}

func (s *PostgresJobStore) MarkCreationLogged(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_jobs SET created_logged = TRUE, updated_at = NOW() WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s created_logged: %w", orderID, err)
	}
	return nil
}

func (s *PostgresJobStore) MarkCompletionLogged(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_jobs SET completion_logged = TRUE, updated_at = NOW() WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("mark job %s completion_logged: %w", orderID, err)
	}
	return nil
}

// ClaimDue locks the oldest due job. SKIP LOCKED lets several workers poll the same table.
func (s *PostgresJobStore) ClaimDue(ctx context.Context, now time.Time) (JobClaim, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin claim tx: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM reconcile_jobs
		 WHERE state = $1 AND created_logged AND run_at <= $2
		 ORDER BY run_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		string(JobScheduled), now,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return nil, false, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, false, fmt.Errorf("claim due job: %w", err)
	}
	return &postgresJobClaim{tx: tx, job: job}, true, nil
}

func (s *PostgresJobStore) RecordFailure(ctx context.Context, orderID string, runAt time.Time, cause string, giveUp bool) error {
	state := JobScheduled
	if giveUp {
		state = JobSkipped
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reconcile_jobs
		 SET attempts = attempts + 1, last_error = $2, run_at = $3, state = $4, updated_at = NOW()
		 WHERE order_id = $1`,
		orderID, cause, runAt, string(state),
	)
	if err != nil {
		return fmt.Errorf("record failure for job %s: %w", orderID, err)
	}
	return nil
}

type postgresJobClaim struct {
	tx  *sql.Tx
	job ReconcileJob
}

func (c *postgresJobClaim) Job() ReconcileJob {
	return c.job
}

func (c *postgresJobClaim) TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error) {
	return transitionStatus(ctx, c.tx, orderID, from, to)
}

func (c *postgresJobClaim) Finish(ctx context.Context, state JobState, note string) error {
	_, err := c.tx.ExecContext(ctx,
		`UPDATE reconcile_jobs SET state = $2, last_error = $3, updated_at = NOW() WHERE order_id = $1`,
		c.job.OrderID, string(state), note,
	)
	if err != nil {
		c.tx.Rollback()
		return fmt.Errorf("finish job %s: %w", c.job.OrderID, err)
	}
	if err := c.tx.Commit(); err != nil {
		return fmt.Errorf("commit job %s: %w", c.job.OrderID, err)
	}
	return nil
}

func (c *postgresJobClaim) Reschedule(ctx context.Context, runAt time.Time) error {
	_, err := c.tx.ExecContext(ctx,
		`UPDATE reconcile_jobs SET run_at = $2, updated_at = NOW() WHERE order_id = $1`,
		c.job.OrderID, runAt,
	)
	if err != nil {
		c.tx.Rollback()
		return fmt.Errorf("reschedule job %s: %w", c.job.OrderID, err)
	}
	if err := c.tx.Commit(); err != nil {
		return fmt.Errorf("commit job %s: %w", c.job.OrderID, err)
	}
	return nil
}

func (c *postgresJobClaim) Abort() error {
	if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
