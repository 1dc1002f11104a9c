package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/lepax/api/internal/domain"
	pfirestore "github.com/lepax/api/internal/platform/firestore"
	"github.com/lepax/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

// OrderRepository persists placed orders within Firestore.
type OrderRepository struct {
	coll *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		coll: pfirestore.NewCollection[orderDocument](provider, orderCollection, nil),
	}, nil
}

// Insert creates the order document keyed by the order ID. Inserting an
// existing ID fails with a conflict error.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.coll == nil {
		return errors.New("order repository not initialised")
	}

	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return errors.New("order repository: user id is required")
	}

	_, err := r.coll.Create(ctx, orderID, encodeOrder(order))
	return err
}

// FindByID loads a single order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.coll == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.coll.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}

	docs, err := r.coll.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("userId", "==", uid).
			OrderBy("createdAt", firestore.Desc).
			Limit(clampOrderLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs), nil
}

// List returns the most recent orders across all users, newest first.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	if r == nil || r.coll == nil {
		return nil, errors.New("order repository not initialised")
	}

	docs, err := r.coll.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			OrderBy("createdAt", firestore.Desc).
			Limit(clampOrderLimit(limit))
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs), nil
}

func clampOrderLimit(limit int) int {
	if limit <= 0 {
		return defaultOrderListLimit
	}
	if limit > maxOrderListLimit {
		return maxOrderListLimit
	}
	return limit
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID:      line.ProductID,
			Name:           strings.TrimSpace(line.Name),
			UnitPriceMinor: line.UnitPriceMinor,
			Quantity:       line.Quantity,
		})
	}
	return orderDocument{
		UserID:        strings.TrimSpace(order.UserID),
		Lines:         lines,
		PaymentMethod: strings.TrimSpace(order.PaymentMethod),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		TotalMinor:    order.TotalMinor,
		CreatedAt:     order.CreatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	lines := make([]domain.OrderLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPriceMinor: line.UnitPriceMinor,
			Quantity:       line.Quantity,
		})
	}
	return domain.Order{
		ID:            id,
		UserID:        doc.UserID,
		Lines:         lines,
		PaymentMethod: doc.PaymentMethod,
		Currency:      doc.Currency,
		TotalMinor:    doc.TotalMinor,
		CreatedAt:     doc.CreatedAt,
	}
}

func decodeOrders(docs []pfirestore.Document[orderDocument]) []domain.Order {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Lines         []orderLineDocument `firestore:"lines"`
	PaymentMethod string              `firestore:"paymentMethod"`
	Currency      string              `firestore:"currency"`
	TotalMinor    int64               `firestore:"totalMinor"`
	CreatedAt     time.Time           `firestore:"createdAt"`
}

type orderLineDocument struct {
	ProductID      int64  `firestore:"productId"`
	Name           string `firestore:"name,omitempty"`
	UnitPriceMinor int64  `firestore:"unitPriceMinor"`
	Quantity       int    `firestore:"quantity"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
