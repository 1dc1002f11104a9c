package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist or is not visible to the caller.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// OrderServiceDeps wires the repository and ambient dependencies for order operations.
type OrderServiceDeps struct {
	Repository  repositories.OrderRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type orderService struct {
	repo   repositories.OrderRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
	newID  func() string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &orderService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
		newID:  idGen,
	}, nil
}

// SubmitOrder persists a confirmed checkout. Only product identities and
// quantities come from the client path; price snapshots are taken from the
// server-held cart lines.
func (s *orderService) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one line", ErrOrderInvalidInput)
	}

	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	var total int64
	for _, line := range cmd.Lines {
		if line.ProductID <= 0 {
			return Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: quantity must be at least 1", ErrOrderInvalidInput)
		}
		lines = append(lines, domain.OrderLine{
			ProductID:      line.ProductID,
			Name:           strings.TrimSpace(line.Name),
			UnitPriceMinor: line.UnitPriceMinor,
			Quantity:       line.Quantity,
		})
		total += line.UnitPriceMinor * int64(line.Quantity)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = "EUR"
	}

	order := domain.Order{
		ID:            s.newID(),
		UserID:        uid,
		Lines:         lines,
		PaymentMethod: strings.TrimSpace(cmd.PaymentMethod),
		Currency:      currency,
		TotalMinor:    total,
		CreatedAt:     s.now(),
	}

	if err := s.repo.Insert(ctx, order); err != nil {
		s.logger(ctx, "orders.insert_failed", map[string]any{
			"userID":  uid,
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return Order{}, translateOrderRepoError(err)
	}

	s.logger(ctx, "orders.submitted", map[string]any{
		"userID":     uid,
		"orderID":    order.ID,
		"totalMinor": order.TotalMinor,
		"method":     order.PaymentMethod,
	})
	return order, nil
}

// GetOrder loads one order. Non-admin callers only see their own orders;
// someone else's order reads as not found rather than forbidden.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID string, admin bool) (Order, error) {
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	uid := strings.TrimSpace(userID)
	if !admin && uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, oid)
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}
	if !admin && order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *orderService) ListOrders(ctx context.Context, userID string, limit int) ([]Order, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	orders, err := s.repo.ListByUser(ctx, uid, limit)
	if err != nil {
		return nil, translateOrderRepoError(err)
	}
	return orders, nil
}

// ListAllOrders returns recent orders across all users for admin views.
func (s *orderService) ListAllOrders(ctx context.Context, limit int) ([]Order, error) {
	orders, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, translateOrderRepoError(err)
	}
	return orders, nil
}

func translateOrderRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrOrderNotFound
		}
		return ErrOrderUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrOrderUnavailable
}
