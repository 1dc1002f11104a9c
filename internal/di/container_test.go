package di

import (
	"context"
	"testing"

	domain "github.com/lepax/api/internal/domain"
	"github.com/lepax/api/internal/platform/config"
	"github.com/lepax/api/internal/repositories"
	"github.com/lepax/api/internal/repositories/memory"
)

type stubOrderRepository struct{}

func (stubOrderRepository) Insert(context.Context, domain.Order) error { return nil }
func (stubOrderRepository) FindByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (stubOrderRepository) ListByUser(context.Context, string, int) ([]domain.Order, error) {
	return nil, nil
}
func (stubOrderRepository) List(context.Context, int) ([]domain.Order, error) { return nil, nil }

type stubAnalyticsRepository struct{}

func (stubAnalyticsRepository) Insert(context.Context, domain.AnalyticsEvent) error { return nil }
func (stubAnalyticsRepository) ListByKind(context.Context, repositories.AnalyticsEventFilter) ([]domain.AnalyticsEvent, error) {
	return nil, nil
}

var (
	_ repositories.OrderRepository          = stubOrderRepository{}
	_ repositories.AnalyticsEventRepository = stubAnalyticsRepository{}
)

func TestNewContainerBuildsServices(t *testing.T) {
	cfg, err := config.Load(
		config.WithoutSystemEnv(),
		config.WithEnvMap(map[string]string{"API_AUTH_SESSION_SECRET": "test-secret"}),
	)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	container, err := NewContainer(ContainerDeps{
		Config: cfg,
		Repositories: Repositories{
			CartSessions:    memory.NewCartSessionRepository(),
			Orders:          stubOrderRepository{},
			AnalyticsEvents: stubAnalyticsRepository{},
		},
	})
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if container.Services.Cart == nil || container.Services.Checkout == nil {
		t.Fatal("expected cart and checkout services")
	}
	if container.Services.Orders == nil || container.Services.Analytics == nil {
		t.Fatal("expected order and analytics services")
	}
	if container.Services.System != nil {
		t.Fatal("expected no system service without a health repository")
	}
}

func TestNewContainerRequiresRepositories(t *testing.T) {
	_, err := NewContainer(ContainerDeps{})
	if err == nil {
		t.Fatal("expected error for missing repositories")
	}
}
