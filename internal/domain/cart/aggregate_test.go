package cart

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/example/storefront-orders/internal/domain/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct(id, price string) product.Product {
	return product.Product{ID: id, Name: "Product " + id, Price: decimal.RequireFromString(price)}
}

// ============================================
// GetCartID Tests
// ============================================

func TestGetCartID(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		expectedID string
	}{
		{"normal user ID", "user-123", "cart-user-123"},
		{"UUID user ID", "550e8400-e29b-41d4-a716-446655440000", "cart-550e8400-e29b-41d4-a716-446655440000"},
		{"empty user ID", "", "cart-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedID, GetCartID(tt.userID))
		})
	}
}

// ============================================
// Add / Remove Tests
// ============================================

func TestCart_Add_NewAndExisting(t *testing.T) {
	c := New("user-1")

	require.NoError(t, c.Add(testProduct("A", "10.00")))
	require.NoError(t, c.Add(testProduct("A", "10.00")))
	require.NoError(t, c.Add(testProduct("B", "5.00")))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "B", items[1].ProductID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.True(t, decimal.RequireFromString("25.00").Equal(c.Total()))
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 3, c.Quantity())
}

func TestCart_Add_KeepsOriginalSnapshot(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.Add(testProduct("A", "10.00")))
	require.NoError(t, c.Add(testProduct("A", "12.00")))

	items := c.Items()
	require.Len(t, items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(items[0].Price))
	assert.Equal(t, 2, items[0].Quantity)
}

func TestCart_AddQuantity_Invalid(t *testing.T) {
	c := New("user-1")

	assert.ErrorIs(t, c.AddQuantity(testProduct("A", "1"), 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.AddQuantity(testProduct("A", "1"), -3), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add(product.Product{}), ErrInvalidProduct)
	assert.Zero(t, c.Count())
}

func TestCart_Remove(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.AddQuantity(testProduct("A", "10.00"), 2))
	require.NoError(t, c.Add(testProduct("B", "5.00")))

	c.Remove("A")

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ProductID)
	assert.True(t, decimal.RequireFromString("5.00").Equal(c.Total()))
}

func TestCart_Remove_Absent(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.Add(testProduct("A", "10.00")))

	c.Remove("missing")

	assert.Equal(t, 1, c.Count())
}

func TestCart_Decrement(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.AddQuantity(testProduct("A", "10.00"), 2))

	c.Decrement("A")
	assert.Equal(t, 1, c.Quantity())

	c.Decrement("A")
	assert.Zero(t, c.Count())

	c.Decrement("A")
	assert.Zero(t, c.Count())
}

func TestCart_Clear(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.Add(testProduct("A", "10.00")))

	c.Clear()

	assert.Zero(t, c.Count())
	assert.True(t, decimal.Zero.Equal(c.Total()))
}

func TestNew_MergesAndDropsInvalid(t *testing.T) {
	c := New("user-1",
		CartItem{ProductID: "A", Quantity: 1, Price: decimal.NewFromInt(1)},
		CartItem{ProductID: "A", Quantity: 2, Price: decimal.NewFromInt(1)},
		CartItem{ProductID: "B", Quantity: 0, Price: decimal.NewFromInt(1)},
		CartItem{Quantity: 1},
	)

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

// ============================================
// Snapshot / Release Tests
// ============================================

func TestCart_Snapshot_IsImmutable(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.Add(testProduct("A", "10.00")))

	snap := c.Snapshot()
	require.NoError(t, c.Add(testProduct("B", "99.00")))
	c.Remove("A")

	require.Len(t, snap.Items, 1)
	assert.Equal(t, "A", snap.Items[0].ProductID)
	assert.True(t, decimal.RequireFromString("10.00").Equal(snap.Total))
	assert.Equal(t, "cart-user-1", snap.CartID)
	assert.False(t, snap.Empty())
}

func TestSnapshot_OrderItems(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.AddQuantity(testProduct("A", "10.00"), 2))
	require.NoError(t, c.Add(testProduct("B", "5.00")))

	items := c.Snapshot().OrderItems()

	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, decimal.RequireFromString("10.00").Equal(items[0].Price))
	assert.Equal(t, "Product A", items[0].Name)
}

func TestCart_Release_Unchanged(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.AddQuantity(testProduct("A", "10.00"), 2))
	require.NoError(t, c.Add(testProduct("B", "5.00")))

	c.Release(c.Snapshot())

	assert.Zero(t, c.Count())
}

func TestCart_Release_KeepsLaterAdditions(t *testing.T) {
	c := New("user-1")
	require.NoError(t, c.Add(testProduct("A", "10.00")))
	snap := c.Snapshot()

	require.NoError(t, c.Add(testProduct("A", "10.00")))
	require.NoError(t, c.Add(testProduct("C", "1.00")))
	c.Release(snap)

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "C", items[1].ProductID)
}

// ============================================
// Invariant Tests
// ============================================

func TestCart_RandomSequences_KeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	products := []product.Product{
		testProduct("A", "10.00"),
		testProduct("B", "5.50"),
		testProduct("C", "0.99"),
	}

	for run := 0; run < 50; run++ {
		c := New("user-1")
		for step := 0; step < 40; step++ {
			p := products[rng.Intn(len(products))]
			switch rng.Intn(4) {
			case 0, 1:
				require.NoError(t, c.Add(p))
			case 2:
				c.Decrement(p.ID)
			case 3:
				c.Remove(p.ID)
			}

			expected := decimal.Zero
			seen := map[string]bool{}
			for _, item := range c.Items() {
				assert.GreaterOrEqual(t, item.Quantity, 1)
				assert.False(t, seen[item.ProductID], "duplicate entry %s", item.ProductID)
				seen[item.ProductID] = true
				expected = expected.Add(item.Subtotal())
			}
			assert.True(t, expected.Equal(c.Total()))
		}
	}
}

func TestCart_ConcurrentAdds(t *testing.T) {
	c := New("user-1")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Add(testProduct("A", "1.00"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, c.Quantity())
	assert.Equal(t, 1, c.Count())
	assert.True(t, decimal.RequireFromString("100.00").Equal(c.Total()))
}
