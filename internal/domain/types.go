package domain

import (
	"strings"
	"time"
)

// CartLine is a single product-and-quantity entry within a session cart.
// At most one line exists per product id; a line whose quantity drops to
// zero is removed rather than retained.
type CartLine struct {
	ProductID      int64  `json:"product_id" firestore:"productId"`
	Name           string `json:"name" firestore:"name"`
	Brand          string `json:"brand" firestore:"brand"`
	Category       string `json:"category" firestore:"category"`
	UnitPriceMinor int64  `json:"unit_price_minor" firestore:"unitPriceMinor"`
	Currency       string `json:"currency" firestore:"currency"`
	Quantity       int    `json:"quantity" firestore:"quantity"`
}

// Cart is the session-scoped aggregate of cart lines for one user.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// TotalMinor sums unit_price_minor * quantity over the current lines. The
// total is derived on every call and never cached.
func (c Cart) TotalMinor() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.UnitPriceMinor * int64(line.Quantity)
	}
	return total
}

// Currency returns the currency of the first line, falling back to the
// provided default for an empty cart.
func (c Cart) Currency(fallback string) string {
	if len(c.Lines) > 0 {
		if code := strings.TrimSpace(c.Lines[0].Currency); code != "" {
			return code
		}
	}
	return fallback
}

// CheckoutPhase enumerates the phases of the checkout state machine.
type CheckoutPhase string

const (
	// CheckoutPhaseReview is the initial phase where the user reviews the bag.
	CheckoutPhaseReview CheckoutPhase = "review"
	// CheckoutPhasePayment is entered once the signed-in user starts payment.
	CheckoutPhasePayment CheckoutPhase = "payment"
)

// PaymentMethod enumerates the selectable payment method labels.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

// CheckoutState is the ephemeral per-user checkout session. The challenge
// code is a simulated strong-customer-authentication step for demonstration
// only; it is generated and verified inside this process and has no real
// security value.
type CheckoutState struct {
	Phase           CheckoutPhase
	PaymentMethod   PaymentMethod
	ChallengeCode   string
	ChallengeIssued bool
	SubmittedCode   string
	InFlight        bool
	LastError       string
}

// OrderLine captures a purchased product with its quantity and the price
// snapshot taken at order time.
type OrderLine struct {
	ProductID      int64  `json:"product_id" firestore:"productId"`
	Name           string `json:"name" firestore:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor" firestore:"unitPriceMinor"`
	Quantity       int    `json:"quantity" firestore:"quantity"`
}

// Order is a placed order persisted for the order-history views.
type Order struct {
	ID            string      `json:"id" firestore:"id"`
	UserID        string      `json:"user_id" firestore:"userId"`
	Lines         []OrderLine `json:"lines" firestore:"lines"`
	PaymentMethod string      `json:"payment_method" firestore:"paymentMethod"`
	Currency      string      `json:"currency" firestore:"currency"`
	TotalMinor    int64       `json:"total_minor" firestore:"totalMinor"`
	CreatedAt     time.Time   `json:"created_at" firestore:"createdAt"`
}

// AnalyticsEventKind distinguishes page views from interaction events.
type AnalyticsEventKind string

const (
	AnalyticsEventView        AnalyticsEventKind = "view"
	AnalyticsEventInteraction AnalyticsEventKind = "interaction"
)

// AnalyticsEvent is a best-effort telemetry record. OccurredAt keeps the
// raw ISO-8601 string from the producer; it may be empty or unparseable,
// in which case bucketing excludes the event.
type AnalyticsEvent struct {
	ID         string             `json:"id" firestore:"id"`
	Kind       AnalyticsEventKind `json:"kind" firestore:"kind"`
	UserID     string             `json:"user_id,omitempty" firestore:"userId,omitempty"`
	SessionID  string             `json:"session_id,omitempty" firestore:"sessionId,omitempty"`
	Path       string             `json:"path,omitempty" firestore:"path,omitempty"`
	ProductID  *int64             `json:"product_id,omitempty" firestore:"productId,omitempty"`
	Referrer   string             `json:"referrer,omitempty" firestore:"referrer,omitempty"`
	UserAgent  string             `json:"user_agent,omitempty" firestore:"userAgent,omitempty"`
	Action     string             `json:"action,omitempty" firestore:"action,omitempty"`
	Metadata   string             `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	OccurredAt string             `json:"occurred_at,omitempty" firestore:"occurredAt,omitempty"`
}

// TimeBucket is one aggregation bucket in a chart-ready series.
type TimeBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
