package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRepo struct {
	mu        sync.Mutex
	carts     map[string][]CartItem
	SaveCalls []string
	LoadErr   error
	SaveErr   error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{carts: make(map[string][]CartItem)}
}

func (r *recordingRepo) LoadCart(ctx context.Context, cartID string) ([]CartItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, false, r.LoadErr
	}
	items, ok := r.carts[cartID]
	return append([]CartItem(nil), items...), ok, nil
}

func (r *recordingRepo) SaveCart(ctx context.Context, cartID, userID string, items []CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SaveCalls = append(r.SaveCalls, cartID)
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.carts[cartID] = items
	return nil
}

func newTestCartService() (*Service, *recordingRepo) {
	repo := newRecordingRepo()
	return NewService(repo), repo
}

// ============================================
// Add Item Tests
// ============================================

func TestService_AddItem_Success(t *testing.T) {
	service, repo := newTestCartService()
	ctx := context.Background()

	c, err := service.AddItem(ctx, "user-123", testProduct("prod-456", "10.00"), 2)

	require.NoError(t, err)
	assert.Equal(t, "cart-user-123", c.ID)
	assert.Equal(t, []string{"cart-user-123"}, repo.SaveCalls)
	require.Len(t, repo.carts["cart-user-123"], 1)
	assert.Equal(t, 2, repo.carts["cart-user-123"][0].Quantity)
}

func TestService_AddItem_Accumulates(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, "user-123", testProduct("A", "10.00"), 1)
	require.NoError(t, err)
	c, err := service.AddItem(ctx, "user-123", testProduct("A", "10.00"), 3)
	require.NoError(t, err)

	assert.Equal(t, 4, c.Quantity())
}

func TestService_AddItem_InvalidInput(t *testing.T) {
	service, repo := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, "user-123", testProduct("", "1.00"), 1)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = service.AddItem(ctx, "user-123", testProduct("A", "1.00"), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Empty(t, repo.SaveCalls)
}

func TestService_AddItem_LoadError(t *testing.T) {
	service, repo := newTestCartService()
	repo.LoadErr = errors.New("connection refused")

	_, err := service.AddItem(context.Background(), "user-123", testProduct("A", "1.00"), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, repo.SaveCalls)
}

func TestService_AddItem_SaveError(t *testing.T) {
	service, repo := newTestCartService()
	repo.SaveErr = errors.New("disk full")

	_, err := service.AddItem(context.Background(), "user-123", testProduct("A", "1.00"), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save cart")
}

// ============================================
// Remove / Decrement / Clear Tests
// ============================================

func TestService_RemoveAndDecrement(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, "user-123", testProduct("A", "10.00"), 2)
	require.NoError(t, err)
	_, err = service.AddItem(ctx, "user-123", testProduct("B", "5.00"), 1)
	require.NoError(t, err)

	c, err := service.DecrementItem(ctx, "user-123", "A")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity())

	c, err = service.RemoveItem(ctx, "user-123", "B")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())

	_, err = service.RemoveItem(ctx, "user-123", "")
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestService_Clear(t *testing.T) {
	service, repo := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, "user-123", testProduct("A", "10.00"), 2)
	require.NoError(t, err)

	require.NoError(t, service.Clear(ctx, "user-123"))

	assert.Empty(t, repo.carts["cart-user-123"])
}

func TestService_Load_MissingCartIsEmpty(t *testing.T) {
	service, _ := newTestCartService()

	c, err := service.Load(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Zero(t, c.Count())
	assert.Equal(t, "cart-nobody", c.ID)
}

// ============================================
// Snapshot / Release Tests
// ============================================

func TestService_SnapshotAndRelease(t *testing.T) {
	service, repo := newTestCartService()
	ctx := context.Background()

	_, err := service.AddItem(ctx, "user-123", testProduct("A", "10.00"), 2)
	require.NoError(t, err)

	snap, err := service.Snapshot(ctx, "user-123")
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)

	_, err = service.AddItem(ctx, "user-123", testProduct("B", "1.00"), 1)
	require.NoError(t, err)

	require.NoError(t, service.Release(ctx, snap))

	items := repo.carts["cart-user-123"]
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ProductID)
}

func TestService_ConcurrentMutationsAreSerialised(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = service.AddItem(ctx, "user-123", testProduct("A", "1.00"), 1)
		}()
	}
	wg.Wait()

	c, err := service.Load(ctx, "user-123")
	require.NoError(t, err)
	assert.Equal(t, 50, c.Quantity())
}

func TestService_LocksAreReleased(t *testing.T) {
	service, _ := newTestCartService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%5)
			_, _ = service.AddItem(ctx, user, testProduct("A", "1.00"), 1)
			_, _ = service.DecrementItem(ctx, user, "A")
		}(i)
	}
	wg.Wait()

	service.mu.Lock()
	defer service.mu.Unlock()
	assert.Empty(t, service.locks)
}
