package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lepax/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// cartEventRecorder is the analytics collaborator used for add-to-cart telemetry.
type cartEventRecorder interface {
	TrackInteraction(ctx context.Context, cmd TrackInteractionCommand)
}

// CartServiceDeps wires the repository and analytics dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartSessionRepository
	Analytics       cartEventRecorder
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	repo      repositories.CartSessionRepository
	analytics cartEventRecorder
	now       func() time.Time
	currency  string
	logger    func(context.Context, string, map[string]any)

	// Mutations are read-modify-write sequences over the repository, so each
	// user's sequence holds a session lock to keep concurrent requests from
	// overwriting each other's merge.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:      deps.Repository,
		analytics: deps.Analytics,
		now:       func() time.Time { return deps.Clock().UTC() },
		currency:  currency,
		logger:    logger,
		userLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *cartService) sessionLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// GetCart loads the session cart for the user, returning an empty cart when none exists.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}
	return cart, nil
}

// AddItem merges the product into the cart, incrementing the quantity when a
// line for the product already exists. A best-effort add_to_cart interaction
// event is recorded; its failure never affects the cart mutation.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if cmd.Item.ProductID <= 0 {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	if cmd.Item.UnitPriceMinor < 0 {
		return Cart{}, fmt.Errorf("%w: unit price must not be negative", ErrCartInvalidInput)
	}

	lock := s.sessionLock(uid)
	lock.Lock()
	defer lock.Unlock()

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}

	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == cmd.Item.ProductID {
			cart.Lines[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		line := cmd.Item
		line.Quantity = cmd.Quantity
		if strings.TrimSpace(line.Currency) == "" {
			line.Currency = s.currency
		}
		cart.Lines = append(cart.Lines, line)
	}

	cart.UserID = uid
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}

	s.recordAddToCart(uid, cmd.Item.ProductID)
	return saved, nil
}

// RemoveItem drops the line for the product. Removing an absent product is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, userID string, productID int64) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID <= 0 {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	lock := s.sessionLock(uid)
	lock.Lock()
	defer lock.Unlock()

	cart, err := s.repo.Get(ctx, uid)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}

	filtered := cart.Lines[:0]
	removed := false
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			removed = true
			continue
		}
		filtered = append(filtered, line)
	}
	if !removed {
		return cart, nil
	}

	cart.Lines = filtered
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, translateCartRepoError(err)
	}
	return saved, nil
}

// Clear discards the user's cart entirely.
func (s *cartService) Clear(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	lock := s.sessionLock(uid)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Delete(ctx, uid); err != nil {
		return translateCartRepoError(err)
	}
	return nil
}

// recordAddToCart dispatches the telemetry event detached from the request so
// a slow or failing analytics backend cannot delay or fail the cart write.
func (s *cartService) recordAddToCart(userID string, productID int64) {
	if s.analytics == nil {
		return
	}

	pid := productID
	cmd := TrackInteractionCommand{
		UserID:    userID,
		Action:    "add_to_cart",
		ProductID: &pid,
		Timestamp: s.now().Format(time.RFC3339),
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger(context.Background(), "cart.analytics_panic", map[string]any{
					"userID": userID,
					"panic":  fmt.Sprint(r),
				})
			}
		}()
		trackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.analytics.TrackInteraction(trackCtx, cmd)
	}()
}

func translateCartRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return ErrCartUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s", ErrCartInvalidInput, err.Error())
}
