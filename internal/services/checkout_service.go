package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

var (
	errCheckoutCartRequired   = errors.New("checkout service: cart service is required")
	errCheckoutOrdersRequired = errors.New("checkout service: order service is required")
	errCheckoutClockRequired  = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates the checkout service cannot fulfil the request.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutNotInPayment indicates the operation requires the payment phase.
var ErrCheckoutNotInPayment = errors.New("checkout service: not in payment phase")

// ErrChallengeNotRequested indicates confirmation arrived before a challenge code was issued.
var ErrChallengeNotRequested = errors.New("checkout service: challenge not requested")

// ErrChallengeMismatch indicates the submitted code does not match the issued one.
var ErrChallengeMismatch = errors.New("checkout service: challenge mismatch")

// ErrEmptyCart indicates the cart emptied before the payment was confirmed.
var ErrEmptyCart = errors.New("checkout service: cart is empty")

// ErrConfirmInFlight indicates a confirmation for the session is already being processed.
var ErrConfirmInFlight = errors.New("checkout service: confirmation already in flight")

// ErrOrderSubmitFailed indicates the order backend rejected or failed the submission.
var ErrOrderSubmitFailed = errors.New("checkout service: order submission failed")

const (
	msgChallengeNotRequested = "request a challenge code first"
	msgChallengeMismatch     = "invalid code, try again"
	msgEmptyCart             = "your bag is empty"
)

// CheckoutServiceDeps wires the collaborators for the checkout state machine.
type CheckoutServiceDeps struct {
	Cart            CartService
	Orders          OrderService
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
	ChallengeRand   func(n int64) int64
	DefaultCurrency string
}

// checkoutSession is one user's in-memory checkout state. All field access
// happens under the owning service mutex.
type checkoutSession struct {
	state CheckoutState
}

type checkoutService struct {
	cart     CartService
	orders   OrderService
	logger   func(context.Context, string, map[string]any)
	randN    func(n int64) int64
	currency string

	mu       sync.Mutex
	sessions map[string]*checkoutSession
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Cart == nil {
		return nil, errCheckoutCartRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	// The challenge is a demo-only simulation, so non-cryptographic
	// randomness is sufficient and keeps tests reproducible via injection.
	randN := deps.ChallengeRand
	if randN == nil {
		rng := rand.New(rand.NewSource(deps.Clock().UnixNano()))
		var rngMu sync.Mutex
		randN = func(n int64) int64 {
			rngMu.Lock()
			defer rngMu.Unlock()
			return rng.Int63n(n)
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "EUR"
	}

	return &checkoutService{
		cart:     deps.Cart,
		orders:   deps.Orders,
		logger:   logger,
		randN:    randN,
		currency: currency,
		sessions: make(map[string]*checkoutSession),
	}, nil
}

// GetState returns the user's current checkout state. A user without a
// session is in the initial review phase.
func (s *checkoutService) GetState(ctx context.Context, userID string) (CheckoutState, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutState{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[uid]; ok {
		return session.state, nil
	}
	return initialCheckoutState(), nil
}

// StartPayment moves the session from review into the payment phase. Starting
// with an empty cart is a no-op that leaves the session in review.
func (s *checkoutService) StartPayment(ctx context.Context, cmd StartPaymentCommand) (CheckoutState, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CheckoutState{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = PaymentMethodCard
	}
	switch method {
	case PaymentMethodCard, PaymentMethodPayPal:
	default:
		return CheckoutState{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}

	cart, err := s.cart.GetCart(ctx, uid)
	if err != nil {
		return CheckoutState{}, ErrCheckoutUnavailable
	}
	if len(cart.Lines) == 0 {
		return s.GetState(ctx, uid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uid]
	if !ok {
		session = &checkoutSession{state: initialCheckoutState()}
		s.sessions[uid] = session
	}
	if session.state.InFlight {
		return session.state, ErrConfirmInFlight
	}

	session.state.Phase = CheckoutPhasePayment
	session.state.PaymentMethod = method
	session.state.LastError = ""
	return session.state, nil
}

// RequestChallenge issues a fresh 6-digit zero-padded challenge code.
// Reissuing replaces any earlier code and clears the submitted one.
func (s *checkoutService) RequestChallenge(ctx context.Context, userID string) (CheckoutState, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CheckoutState{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return CheckoutState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uid]
	if !ok || session.state.Phase != CheckoutPhasePayment {
		return CheckoutState{}, ErrCheckoutNotInPayment
	}
	if session.state.InFlight {
		return session.state, ErrConfirmInFlight
	}

	session.state.ChallengeCode = fmt.Sprintf("%06d", s.randN(1000000))
	session.state.ChallengeIssued = true
	session.state.SubmittedCode = ""
	session.state.LastError = ""
	return session.state, nil
}

// ConfirmPayment verifies the submitted code and submits the order. All
// failure modes leave the session in the payment phase so the user can retry
// without requesting a new challenge.
func (s *checkoutService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	code := strings.TrimSpace(cmd.Code)

	s.mu.Lock()
	session, ok := s.sessions[uid]
	if !ok || session.state.Phase != CheckoutPhasePayment {
		s.mu.Unlock()
		return ConfirmPaymentResult{}, ErrCheckoutNotInPayment
	}
	if session.state.InFlight {
		state := session.state
		s.mu.Unlock()
		return ConfirmPaymentResult{State: state}, ErrConfirmInFlight
	}

	if !session.state.ChallengeIssued {
		session.state.LastError = msgChallengeNotRequested
		state := session.state
		s.mu.Unlock()
		return ConfirmPaymentResult{State: state}, ErrChallengeNotRequested
	}

	session.state.SubmittedCode = code
	if code != session.state.ChallengeCode {
		// The issued challenge survives a mismatch; the user retries
		// against the same code.
		session.state.LastError = msgChallengeMismatch
		state := session.state
		s.mu.Unlock()
		return ConfirmPaymentResult{State: state}, ErrChallengeMismatch
	}

	session.state.InFlight = true
	method := session.state.PaymentMethod
	s.mu.Unlock()

	result, err := s.submitConfirmedOrder(ctx, uid, method)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The session may have been abandoned while the submission was in flight.
	session, ok = s.sessions[uid]
	if !ok {
		return result, err
	}
	session.state.InFlight = false

	if err != nil {
		session.state.LastError = submissionErrorMessage(err)
		result.State = session.state
		return result, err
	}

	delete(s.sessions, uid)
	result.State = initialCheckoutState()
	result.Success = true
	return result, nil
}

// Abandon discards the session entirely. Abandoning an absent session is a no-op.
func (s *checkoutService) Abandon(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, uid)
	s.mu.Unlock()
	return nil
}

func (s *checkoutService) submitConfirmedOrder(ctx context.Context, userID string, method PaymentMethod) (ConfirmPaymentResult, error) {
	cart, err := s.cart.GetCart(ctx, userID)
	if err != nil {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: cart unavailable", ErrOrderSubmitFailed)
	}
	if len(cart.Lines) == 0 {
		return ConfirmPaymentResult{}, ErrEmptyCart
	}

	order, err := s.orders.SubmitOrder(ctx, SubmitOrderCommand{
		UserID:        userID,
		Lines:         cart.Lines,
		PaymentMethod: string(method),
		Currency:      cart.Currency(s.currency),
	})
	if err != nil {
		s.logger(ctx, "checkout.order_submit_failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
		return ConfirmPaymentResult{}, fmt.Errorf("%w: %s", ErrOrderSubmitFailed, err.Error())
	}

	if err := s.cart.Clear(ctx, userID); err != nil {
		// The order stands; an uncleared cart is recoverable and only logged.
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userID":  userID,
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}

	return ConfirmPaymentResult{Order: order}, nil
}

func submissionErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return msgEmptyCart
	case errors.Is(err, ErrOrderSubmitFailed):
		msg := strings.TrimPrefix(err.Error(), ErrOrderSubmitFailed.Error())
		msg = strings.TrimPrefix(msg, ": ")
		if msg == "" {
			return "order submission failed"
		}
		return msg
	default:
		return err.Error()
	}
}

func initialCheckoutState() CheckoutState {
	return CheckoutState{Phase: CheckoutPhaseReview, PaymentMethod: PaymentMethodCard}
}
