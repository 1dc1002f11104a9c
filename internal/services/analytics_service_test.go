package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/repositories"
)

type stubAnalyticsRepository struct {
	insertFn func(ctx context.Context, event domain.AnalyticsEvent) error
	listFn   func(ctx context.Context, filter repositories.AnalyticsEventFilter) ([]domain.AnalyticsEvent, error)
}

func (s *stubAnalyticsRepository) Insert(ctx context.Context, event domain.AnalyticsEvent) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, event)
	}
	return nil
}

func (s *stubAnalyticsRepository) ListByKind(ctx context.Context, filter repositories.AnalyticsEventFilter) ([]domain.AnalyticsEvent, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

type stubPublisher struct {
	published []domain.AnalyticsEvent
	err       error
}

func (s *stubPublisher) PublishEvent(_ context.Context, event domain.AnalyticsEvent) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.published = append(s.published, event)
	return "msg-1", nil
}

func newTestAnalyticsService(t *testing.T, repo *stubAnalyticsRepository, publisher AnalyticsPublisher) AnalyticsService {
	t.Helper()
	svc, err := NewAnalyticsService(AnalyticsServiceDeps{
		Repository:  repo,
		Publisher:   publisher,
		IDGenerator: func() string { return "01TESTEVENTID" },
	})
	if err != nil {
		t.Fatalf("NewAnalyticsService: %v", err)
	}
	return svc
}

func TestAnalyticsServiceTrackViewStoresAndPublishes(t *testing.T) {
	var inserted domain.AnalyticsEvent
	repo := &stubAnalyticsRepository{
		insertFn: func(_ context.Context, event domain.AnalyticsEvent) error {
			inserted = event
			return nil
		},
	}
	publisher := &stubPublisher{}
	svc := newTestAnalyticsService(t, repo, publisher)

	pid := int64(42)
	svc.TrackView(context.Background(), TrackViewCommand{
		UserID:    "user-1",
		Path:      "/products/42",
		ProductID: &pid,
		Timestamp: "2025-03-10T08:00:00Z",
	})

	if inserted.Kind != domain.AnalyticsEventView {
		t.Fatalf("expected view kind, got %s", inserted.Kind)
	}
	if inserted.ID != "01TESTEVENTID" || inserted.Path != "/products/42" {
		t.Fatalf("unexpected event %+v", inserted)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected event fan-out, got %d", len(publisher.published))
	}
}

func TestAnalyticsServiceTrackSwallowsFailures(t *testing.T) {
	logged := map[string]int{}
	repo := &stubAnalyticsRepository{
		insertFn: func(context.Context, domain.AnalyticsEvent) error {
			return errors.New("backend down")
		},
	}
	svc, err := NewAnalyticsService(AnalyticsServiceDeps{
		Repository: repo,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged[event]++
		},
	})
	if err != nil {
		t.Fatalf("NewAnalyticsService: %v", err)
	}

	// Must not panic or surface the storage error.
	svc.TrackInteraction(context.Background(), TrackInteractionCommand{Action: "add_to_cart"})

	if logged["analytics.insert_failed"] != 1 {
		t.Fatalf("expected insert failure logged, got %v", logged)
	}
}

func TestAnalyticsServiceTrackLogsPublishFailure(t *testing.T) {
	logged := map[string]int{}
	svc, err := NewAnalyticsService(AnalyticsServiceDeps{
		Repository: &stubAnalyticsRepository{},
		Publisher:  &stubPublisher{err: errors.New("topic gone")},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged[event]++
		},
	})
	if err != nil {
		t.Fatalf("NewAnalyticsService: %v", err)
	}

	svc.TrackView(context.Background(), TrackViewCommand{Path: "/"})

	if logged["analytics.publish_failed"] != 1 {
		t.Fatalf("expected publish failure logged, got %v", logged)
	}
}

func TestAnalyticsServiceListEventsValidatesKind(t *testing.T) {
	svc := newTestAnalyticsService(t, &stubAnalyticsRepository{}, nil)

	if _, err := svc.ListEvents(context.Background(), AnalyticsEventKind("click"), 10); !errors.Is(err, ErrAnalyticsInvalidInput) {
		t.Fatalf("expected ErrAnalyticsInvalidInput, got %v", err)
	}
}

func TestAnalyticsServiceSeries(t *testing.T) {
	repo := &stubAnalyticsRepository{
		listFn: func(_ context.Context, filter repositories.AnalyticsEventFilter) ([]domain.AnalyticsEvent, error) {
			if filter.Kind != domain.AnalyticsEventView {
				t.Fatalf("expected view filter, got %s", filter.Kind)
			}
			return []domain.AnalyticsEvent{
				{Kind: domain.AnalyticsEventView, OccurredAt: "2025-03-10T08:00:00Z"},
				{Kind: domain.AnalyticsEventView, OccurredAt: "2025-03-10T09:00:00Z"},
				{Kind: domain.AnalyticsEventView, OccurredAt: ""},
			}, nil
		},
	}
	svc := newTestAnalyticsService(t, repo, nil)

	buckets, err := svc.Series(context.Background(), SeriesQuery{
		Kind:        domain.AnalyticsEventView,
		Granularity: SeriesDaily,
	})
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Label != "2025-03-10" || buckets[0].Count != 2 {
		t.Fatalf("unexpected buckets %+v", buckets)
	}
}

func TestAnalyticsServiceSeriesValidatesGranularity(t *testing.T) {
	svc := newTestAnalyticsService(t, &stubAnalyticsRepository{}, nil)

	_, err := svc.Series(context.Background(), SeriesQuery{
		Kind:        domain.AnalyticsEventView,
		Granularity: SeriesGranularity("hourly"),
	})
	if !errors.Is(err, ErrAnalyticsInvalidInput) {
		t.Fatalf("expected ErrAnalyticsInvalidInput, got %v", err)
	}
}
