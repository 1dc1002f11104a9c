package repositories

import (
	"context"

	domain "github.com/lepax/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartSessionRepository owns the session-scoped carts. Carts live only for
// the duration of a browsing session and are never written to durable storage.
type CartSessionRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
}

// OrderRepository persists placed orders for the order-history views.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
	List(ctx context.Context, limit int) ([]domain.Order, error)
}

// AnalyticsEventFilter narrows analytics event listings.
type AnalyticsEventFilter struct {
	Kind  domain.AnalyticsEventKind
	Limit int
}

// AnalyticsEventRepository stores telemetry events for the admin dashboard.
type AnalyticsEventRepository interface {
	Insert(ctx context.Context, event domain.AnalyticsEvent) error
	ListByKind(ctx context.Context, filter AnalyticsEventFilter) ([]domain.AnalyticsEvent, error)
}

// HealthRepository evaluates backend connectivity for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
