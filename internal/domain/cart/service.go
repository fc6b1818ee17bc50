package cart

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/example/storefront-orders/internal/domain/product"
)

// Repository persists cart entries keyed by cart id.
type Repository interface {
	// LoadCart returns the entries of cartID; found is false when no cart was saved yet.
	LoadCart(ctx context.Context, cartID string) (items []CartItem, found bool, err error)
	SaveCart(ctx context.Context, cartID, userID string, items []CartItem) error
}

// Service serialises mutations per cart id and persists each one.
type Service struct {
	repo Repository

	mu    sync.Mutex
	locks map[string]*cartLock
}

// cartLock is dropped from the map once no caller holds or waits for it.
type cartLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, locks: make(map[string]*cartLock)}
}

func (s *Service) lock(cartID string) func() {
	s.mu.Lock()
	l, ok := s.locks[cartID]
	if !ok {
		l = &cartLock{}
		s.locks[cartID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, cartID)
		}
		s.mu.Unlock()
	}
}

func (s *Service) load(ctx context.Context, userID string) (*Cart, error) {
	cartID := GetCartID(userID)
	items, found, err := s.repo.LoadCart(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart %s: %w", cartID, err)
	}
	if !found {
		return New(userID), nil
	}
	return New(userID, items...), nil
}

// mutate loads the cart, applies fn and saves the result under the cart lock.
func (s *Service) mutate(ctx context.Context, userID string, fn func(c *Cart) error) (*Cart, error) {
	unlock := s.lock(GetCartID(userID))
	defer unlock()

	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.repo.SaveCart(ctx, c.ID, c.UserID, c.Items()); err != nil {
		return nil, fmt.Errorf("failed to save cart %s: %w", c.ID, err)
	}
	return c, nil
}

// Load returns the current cart of userID; a missing cart is empty.
func (s *Service) Load(ctx context.Context, userID string) (*Cart, error) {
	unlock := s.lock(GetCartID(userID))
	defer unlock()
	return s.load(ctx, userID)
}

func (s *Service) AddItem(ctx context.Context, userID string, p product.Product, quantity int) (*Cart, error) {
	if p.ID == "" {
		return nil, ErrInvalidProduct
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.AddQuantity(p, quantity)
	})
}

func (s *Service) DecrementItem(ctx context.Context, userID, productID string) (*Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.Decrement(productID)
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.mutate(ctx, userID, func(c *Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// Snapshot returns an atomic copy of the persisted cart of userID.
func (s *Service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	c, err := s.Load(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Release removes the entries captured by snap after a successful checkout.
func (s *Service) Release(ctx context.Context, snap Snapshot) error {
	_, err := s.mutate(ctx, snap.UserID, func(c *Cart) error {
		c.Release(snap)
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[Cart] Released %d entries from cart %s", len(snap.Items), snap.CartID)
	return nil
}
