package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/storefront-orders/internal/domain/order"
	"github.com/example/storefront-orders/internal/infrastructure/store"
)

// MockJobStore is an in-memory JobStore that also tracks order statuses, so a
// claim can perform the guarded transition.
type MockJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*store.ReconcileJob
	statuses map[string]order.Status
	claimed  map[string]bool

	// For tracking calls in tests
	MarkLoggedCalls           []string
	MarkCompletionLoggedCalls []string
	RecordFailureCalls        []RecordFailureCall
	FinishCalls               []FinishCall
	RescheduleCalls           []RescheduleCall

	UnloggedErr             error
	MarkLoggedErr           error
	MarkCompletionLoggedErr error
	ClaimErr                error
	TransitionErr           error
	FinishErr               error
}

// RecordFailureCall records parameters passed to RecordFailure
type RecordFailureCall struct {
	OrderID string
	RunAt   time.Time
	Cause   string
	GiveUp  bool
}

// RescheduleCall records parameters passed to JobClaim.Reschedule
type RescheduleCall struct {
	OrderID string
	RunAt   time.Time
}

// FinishCall records parameters passed to JobClaim.Finish
type FinishCall struct {
	OrderID string
	State   store.JobState
	Note    string
}

func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:     make(map[string]*store.ReconcileJob),
		statuses: make(map[string]order.Status),
		claimed:  make(map[string]bool),
	}
}

// AddJob seeds a job together with the current status of its order.
func (m *MockJobStore) AddJob(job store.ReconcileJob, status order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.State == "" {
		job.State = store.JobScheduled
	}
	m.jobs[job.OrderID] = &job
	m.statuses[job.OrderID] = status
}

func (m *MockJobStore) SetStatus(orderID string, status order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderID] = status
}

func (m *MockJobStore) Status(orderID string) order.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[orderID]
}

func (m *MockJobStore) Job(orderID string) store.ReconcileJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[orderID]; ok {
		return *job
	}
	return store.ReconcileJob{}
}

func (m *MockJobStore) UnloggedJobs(ctx context.Context, limit int) ([]store.ReconcileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnloggedErr != nil {
		return nil, m.UnloggedErr
	}
	out := []store.ReconcileJob{}
	for _, job := range m.jobs {
		if !job.CreatedLogged {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockJobStore) MarkCreationLogged(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkLoggedCalls = append(m.MarkLoggedCalls, orderID)
	if m.MarkLoggedErr != nil {
		return m.MarkLoggedErr
	}
	if job, ok := m.jobs[orderID]; ok {
		job.CreatedLogged = true
	}
	return nil
}

func (m *MockJobStore) UnloggedCompletions(ctx context.Context, limit int) ([]store.ReconcileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnloggedErr != nil {
		return nil, m.UnloggedErr
	}
	out := []store.ReconcileJob{}
	for _, job := range m.jobs {
		if job.State == store.JobDone && !job.CompletionLogged {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockJobStore) MarkCompletionLogged(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarkCompletionLoggedCalls = append(m.MarkCompletionLoggedCalls, orderID)
	if m.MarkCompletionLoggedErr != nil {
		return m.MarkCompletionLoggedErr
	}
	if job, ok := m.jobs[orderID]; ok {
		job.CompletionLogged = true
	}
	return nil
}

func (m *MockJobStore) ClaimDue(ctx context.Context, now time.Time) (store.JobClaim, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimErr != nil {
		return nil, false, m.ClaimErr
	}

	var due *store.ReconcileJob
	for _, job := range m.jobs {
		if job.State != store.JobScheduled || !job.CreatedLogged || job.RunAt.After(now) || m.claimed[job.OrderID] {
			continue
		}
		if due == nil || job.RunAt.Before(due.RunAt) {
			due = job
		}
	}
	if due == nil {
		return nil, false, nil
	}
	m.claimed[due.OrderID] = true
	return &mockJobClaim{store: m, job: *due}, true, nil
}

func (m *MockJobStore) RecordFailure(ctx context.Context, orderID string, runAt time.Time, cause string, giveUp bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordFailureCalls = append(m.RecordFailureCalls, RecordFailureCall{OrderID: orderID, RunAt: runAt, Cause: cause, GiveUp: giveUp})
	job, ok := m.jobs[orderID]
	if !ok {
		return nil
	}
	job.Attempts++
	job.LastError = cause
	job.RunAt = runAt
	if giveUp {
		job.State = store.JobSkipped
	}
	return nil
}

type mockJobClaim struct {
	store     *MockJobStore
	job       store.ReconcileJob
	newStatus order.Status
	changed   bool
	done      bool
}

func (c *mockJobClaim) Job() store.ReconcileJob {
	return c.job
}

func (c *mockJobClaim) TransitionStatus(ctx context.Context, orderID string, from, to order.Status) (bool, error) {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	if m.statuses[orderID] != from {
		return false, nil
	}
	c.newStatus = to
	c.changed = true
	return true, nil
}

func (c *mockJobClaim) Finish(ctx context.Context, state store.JobState, note string) error {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	delete(m.claimed, c.job.OrderID)

	m.FinishCalls = append(m.FinishCalls, FinishCall{OrderID: c.job.OrderID, State: state, Note: note})
	if m.FinishErr != nil {
		return m.FinishErr
	}
	if c.changed {
		m.statuses[c.job.OrderID] = c.newStatus
	}
	if job, ok := m.jobs[c.job.OrderID]; ok {
		job.State = state
		job.LastError = note
	}
	return nil
}

func (c *mockJobClaim) Reschedule(ctx context.Context, runAt time.Time) error {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	delete(m.claimed, c.job.OrderID)

	m.RescheduleCalls = append(m.RescheduleCalls, RescheduleCall{OrderID: c.job.OrderID, RunAt: runAt})
	if job, ok := m.jobs[c.job.OrderID]; ok {
		job.RunAt = runAt
	}
	return nil
}

func (c *mockJobClaim) Abort() error {
	m := c.store
	m.mu.Lock()
	defer m.mu.Unlock()
	c.done = true
	delete(m.claimed, c.job.OrderID)
	return nil
}
