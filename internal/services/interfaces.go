package services

import (
	"context"
	"time"

	domain "github.com/lepax/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart               = domain.Cart
	CartLine           = domain.CartLine
	CheckoutPhase      = domain.CheckoutPhase
	CheckoutState      = domain.CheckoutState
	PaymentMethod      = domain.PaymentMethod
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	AnalyticsEvent     = domain.AnalyticsEvent
	AnalyticsEventKind = domain.AnalyticsEventKind
	TimeBucket         = domain.TimeBucket
	SystemHealthReport = domain.SystemHealthReport
)

// Enumerated values re-exported with the aliases so service code can use them
// unqualified.
const (
	CheckoutPhaseReview  = domain.CheckoutPhaseReview
	CheckoutPhasePayment = domain.CheckoutPhasePayment
	PaymentMethodCard    = domain.PaymentMethodCard
	PaymentMethodPayPal  = domain.PaymentMethodPayPal
)

// CartService manages the session-scoped cart aggregate for each user.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, userID string, productID int64) (Cart, error)
	Clear(ctx context.Context, userID string) error
}

// AddCartItemCommand describes a product being added to a cart.
type AddCartItemCommand struct {
	UserID   string
	Item     CartLine
	Quantity int
}

// CheckoutService drives the review/payment state machine through order submission.
type CheckoutService interface {
	GetState(ctx context.Context, userID string) (CheckoutState, error)
	StartPayment(ctx context.Context, cmd StartPaymentCommand) (CheckoutState, error)
	RequestChallenge(ctx context.Context, userID string) (CheckoutState, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error)
	Abandon(ctx context.Context, userID string) error
}

// StartPaymentCommand carries the transition from review into payment.
type StartPaymentCommand struct {
	UserID        string
	PaymentMethod PaymentMethod
}

// ConfirmPaymentCommand carries a challenge-code submission.
type ConfirmPaymentCommand struct {
	UserID string
	Code   string
}

// ConfirmPaymentResult reports the outcome of a confirmed checkout.
type ConfirmPaymentResult struct {
	State   CheckoutState
	Order   Order
	Success bool
}

// OrderService persists confirmed orders and serves the order-history views.
type OrderService interface {
	SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (Order, error)
	GetOrder(ctx context.Context, userID, orderID string, admin bool) (Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]Order, error)
	ListAllOrders(ctx context.Context, limit int) ([]Order, error)
}

// SubmitOrderCommand captures the order payload produced by a confirmed checkout.
// Prices are resolved from the submitted cart lines on the server side.
type SubmitOrderCommand struct {
	UserID        string
	Lines         []CartLine
	PaymentMethod string
	Currency      string
}

// AnalyticsService records telemetry and renders the admin dashboard datasets.
type AnalyticsService interface {
	TrackView(ctx context.Context, cmd TrackViewCommand)
	TrackInteraction(ctx context.Context, cmd TrackInteractionCommand)
	ListEvents(ctx context.Context, kind AnalyticsEventKind, limit int) ([]AnalyticsEvent, error)
	Series(ctx context.Context, query SeriesQuery) ([]TimeBucket, error)
}

// TrackViewCommand records a page view.
type TrackViewCommand struct {
	UserID    string
	SessionID string
	Path      string
	ProductID *int64
	Referrer  string
	UserAgent string
	Timestamp string
}

// TrackInteractionCommand records a user interaction.
type TrackInteractionCommand struct {
	UserID    string
	SessionID string
	Action    string
	ProductID *int64
	Metadata  string
	Timestamp string
}

// SeriesGranularity selects a bucketing resolution for chart series.
type SeriesGranularity string

const (
	SeriesDaily   SeriesGranularity = "daily"
	SeriesWeekly  SeriesGranularity = "weekly"
	SeriesMonthly SeriesGranularity = "monthly"
	SeriesYearly  SeriesGranularity = "yearly"
)

// SeriesQuery selects the dataset, resolution, and inclusive date range for a chart.
type SeriesQuery struct {
	Kind        AnalyticsEventKind
	Granularity SeriesGranularity
	StartDate   string
	EndDate     string
}

// SystemService provides health reports and runtime metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}
