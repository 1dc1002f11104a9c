package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/lepax/api/internal/domain"
	pfirestore "github.com/lepax/api/internal/platform/firestore"
	"github.com/lepax/api/internal/repositories"
)

const (
	analyticsCollection       = "analytics_events"
	defaultAnalyticsListLimit = 1000
	maxAnalyticsListLimit     = 5000
)

// AnalyticsEventRepository stores telemetry events within Firestore.
type AnalyticsEventRepository struct {
	coll *pfirestore.Collection[analyticsEventDocument]
}

// NewAnalyticsEventRepository constructs a Firestore-backed analytics event repository.
func NewAnalyticsEventRepository(provider *pfirestore.Provider) (*AnalyticsEventRepository, error) {
	if provider == nil {
		return nil, errors.New("analytics repository requires firestore provider")
	}
	return &AnalyticsEventRepository{
		coll: pfirestore.NewCollection[analyticsEventDocument](provider, analyticsCollection, nil),
	}, nil
}

// Insert writes the event keyed by its identifier.
func (r *AnalyticsEventRepository) Insert(ctx context.Context, event domain.AnalyticsEvent) error {
	if r == nil || r.coll == nil {
		return errors.New("analytics repository not initialised")
	}

	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return errors.New("analytics repository: event id is required")
	}

	doc := analyticsEventDocument{
		Kind:       string(event.Kind),
		UserID:     strings.TrimSpace(event.UserID),
		SessionID:  strings.TrimSpace(event.SessionID),
		Path:       strings.TrimSpace(event.Path),
		ProductID:  event.ProductID,
		Referrer:   strings.TrimSpace(event.Referrer),
		UserAgent:  strings.TrimSpace(event.UserAgent),
		Action:     strings.TrimSpace(event.Action),
		Metadata:   event.Metadata,
		OccurredAt: strings.TrimSpace(event.OccurredAt),
	}

	_, err := r.coll.Create(ctx, eventID, doc)
	return err
}

// ListByKind returns events of the given kind ordered by occurrence time.
// The occurredAt field holds raw producer timestamps; ISO-8601 strings order
// correctly under the lexicographic ordering Firestore applies.
func (r *AnalyticsEventRepository) ListByKind(ctx context.Context, filter repositories.AnalyticsEventFilter) ([]domain.AnalyticsEvent, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("analytics repository not initialised")
	}
	kind := strings.TrimSpace(string(filter.Kind))
	if kind == "" {
		return nil, errors.New("analytics repository: event kind is required")
	}

	docs, err := r.coll.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("kind", "==", kind).
			OrderBy("occurredAt", firestore.Desc).
			Limit(clampAnalyticsLimit(filter.Limit))
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.AnalyticsEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, domain.AnalyticsEvent{
			ID:         doc.ID,
			Kind:       domain.AnalyticsEventKind(doc.Data.Kind),
			UserID:     doc.Data.UserID,
			SessionID:  doc.Data.SessionID,
			Path:       doc.Data.Path,
			ProductID:  doc.Data.ProductID,
			Referrer:   doc.Data.Referrer,
			UserAgent:  doc.Data.UserAgent,
			Action:     doc.Data.Action,
			Metadata:   doc.Data.Metadata,
			OccurredAt: doc.Data.OccurredAt,
		})
	}
	return events, nil
}

func clampAnalyticsLimit(limit int) int {
	if limit <= 0 {
		return defaultAnalyticsListLimit
	}
	if limit > maxAnalyticsListLimit {
		return maxAnalyticsListLimit
	}
	return limit
}

type analyticsEventDocument struct {
	Kind       string `firestore:"kind"`
	UserID     string `firestore:"userId,omitempty"`
	SessionID  string `firestore:"sessionId,omitempty"`
	Path       string `firestore:"path,omitempty"`
	ProductID  *int64 `firestore:"productId,omitempty"`
	Referrer   string `firestore:"referrer,omitempty"`
	UserAgent  string `firestore:"userAgent,omitempty"`
	Action     string `firestore:"action,omitempty"`
	Metadata   string `firestore:"metadata,omitempty"`
	OccurredAt string `firestore:"occurredAt,omitempty"`
}

var _ repositories.AnalyticsEventRepository = (*AnalyticsEventRepository)(nil)
