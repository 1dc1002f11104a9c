package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/repositories"
)

// CartSessionRepository keeps session carts in process memory. Carts live
// only as long as the process; restarting discards them.
type CartSessionRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartSessionRepository constructs an empty in-memory cart store.
func NewCartSessionRepository() *CartSessionRepository {
	return &CartSessionRepository{
		carts: make(map[string]domain.Cart),
	}
}

// Get returns the cart for the given user. A user without a saved cart
// receives an empty cart rather than a not-found error.
func (r *CartSessionRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[uid]
	if !ok {
		return domain.Cart{UserID: uid, Lines: []domain.CartLine{}}, nil
	}
	return cloneCart(cart), nil
}

// Save replaces the stored cart for the cart's user.
func (r *CartSessionRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	stored := cloneCart(cart)
	stored.UserID = uid

	r.mu.Lock()
	r.carts[uid] = stored
	r.mu.Unlock()

	return cloneCart(stored), nil
}

// Delete discards the cart for the given user. Deleting an absent cart is a no-op.
func (r *CartSessionRepository) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	r.mu.Lock()
	delete(r.carts, uid)
	r.mu.Unlock()
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	dup.Lines = make([]domain.CartLine, len(cart.Lines))
	copy(dup.Lines, cart.Lines)
	return dup
}

var _ repositories.CartSessionRepository = (*CartSessionRepository)(nil)
