package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/repositories"
)

var errAnalyticsRepositoryRequired = errors.New("analytics service: repository is required")

// ErrAnalyticsInvalidInput indicates the caller supplied invalid input.
var ErrAnalyticsInvalidInput = errors.New("analytics service: invalid input")

// ErrAnalyticsUnavailable indicates the analytics backend cannot fulfil the request.
var ErrAnalyticsUnavailable = errors.New("analytics service: unavailable")

// AnalyticsPublisher fans recorded events out to downstream consumers.
type AnalyticsPublisher interface {
	PublishEvent(ctx context.Context, event domain.AnalyticsEvent) (string, error)
}

// AnalyticsServiceDeps wires the storage and fan-out dependencies for telemetry.
// Timestamps are producer-supplied and stored raw, so no clock is injected.
type AnalyticsServiceDeps struct {
	Repository  repositories.AnalyticsEventRepository
	Publisher   AnalyticsPublisher
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type analyticsService struct {
	repo      repositories.AnalyticsEventRepository
	publisher AnalyticsPublisher
	logger    func(context.Context, string, map[string]any)
	newID     func() string
}

// NewAnalyticsService constructs an AnalyticsService enforcing dependency validation.
// The publisher is optional; a nil publisher disables fan-out.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Repository == nil {
		return nil, errAnalyticsRepositoryRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &analyticsService{
		repo:      deps.Repository,
		publisher: deps.Publisher,
		logger:    logger,
		newID:     idGen,
	}, nil
}

// TrackView records a page view. Recording is best-effort: storage or
// fan-out failures are logged and never surfaced to the caller.
func (s *analyticsService) TrackView(ctx context.Context, cmd TrackViewCommand) {
	event := domain.AnalyticsEvent{
		ID:         s.newID(),
		Kind:       domain.AnalyticsEventView,
		UserID:     strings.TrimSpace(cmd.UserID),
		SessionID:  strings.TrimSpace(cmd.SessionID),
		Path:       strings.TrimSpace(cmd.Path),
		ProductID:  cmd.ProductID,
		Referrer:   strings.TrimSpace(cmd.Referrer),
		UserAgent:  strings.TrimSpace(cmd.UserAgent),
		OccurredAt: strings.TrimSpace(cmd.Timestamp),
	}
	s.record(ctx, event)
}

// TrackInteraction records a user interaction such as add_to_cart. Recording
// is best-effort; failures are logged only.
func (s *analyticsService) TrackInteraction(ctx context.Context, cmd TrackInteractionCommand) {
	event := domain.AnalyticsEvent{
		ID:         s.newID(),
		Kind:       domain.AnalyticsEventInteraction,
		UserID:     strings.TrimSpace(cmd.UserID),
		SessionID:  strings.TrimSpace(cmd.SessionID),
		Action:     strings.TrimSpace(cmd.Action),
		ProductID:  cmd.ProductID,
		Metadata:   cmd.Metadata,
		OccurredAt: strings.TrimSpace(cmd.Timestamp),
	}
	s.record(ctx, event)
}

func (s *analyticsService) record(ctx context.Context, event domain.AnalyticsEvent) {
	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger(ctx, "analytics.insert_failed", map[string]any{
			"eventID": event.ID,
			"kind":    string(event.Kind),
			"error":   err.Error(),
		})
		return
	}

	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishEvent(ctx, event); err != nil {
		s.logger(ctx, "analytics.publish_failed", map[string]any{
			"eventID": event.ID,
			"kind":    string(event.Kind),
			"error":   err.Error(),
		})
	}
}

// ListEvents returns stored events of one kind for the admin dashboard.
func (s *analyticsService) ListEvents(ctx context.Context, kind AnalyticsEventKind, limit int) ([]AnalyticsEvent, error) {
	switch kind {
	case domain.AnalyticsEventView, domain.AnalyticsEventInteraction:
	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrAnalyticsInvalidInput, kind)
	}

	events, err := s.repo.ListByKind(ctx, repositories.AnalyticsEventFilter{Kind: kind, Limit: limit})
	if err != nil {
		return nil, translateAnalyticsRepoError(err)
	}
	return events, nil
}

// Series renders a chart-ready bucket series for the requested kind,
// granularity, and inclusive date range.
func (s *analyticsService) Series(ctx context.Context, query SeriesQuery) ([]TimeBucket, error) {
	switch query.Granularity {
	case SeriesDaily, SeriesWeekly, SeriesMonthly, SeriesYearly:
	default:
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrAnalyticsInvalidInput, query.Granularity)
	}

	events, err := s.ListEvents(ctx, query.Kind, 0)
	if err != nil {
		return nil, err
	}

	buckets, ok := BucketEvents(events, query.Granularity, strings.TrimSpace(query.StartDate), strings.TrimSpace(query.EndDate))
	if !ok {
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrAnalyticsInvalidInput, query.Granularity)
	}
	return buckets, nil
}

func translateAnalyticsRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrAnalyticsUnavailable
}
