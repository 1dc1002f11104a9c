package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lepax/api/internal/platform/config"
	"github.com/lepax/api/internal/platform/observability"
	"github.com/lepax/api/internal/repositories"
	"github.com/lepax/api/internal/services"
)

// Repositories bundles the persistence contracts the services are built on.
type Repositories struct {
	CartSessions    repositories.CartSessionRepository
	Orders          repositories.OrderRepository
	AnalyticsEvents repositories.AnalyticsEventRepository
	Health          repositories.HealthRepository
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart      services.CartService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Analytics services.AnalyticsService
	System    services.SystemService
}

// ContainerDeps carries everything NewContainer needs to assemble the runtime graph.
type ContainerDeps struct {
	Config       config.Config
	Repositories Repositories
	Publisher    services.AnalyticsPublisher
	Logger       *zap.Logger
	Clock        func() time.Time
	Build        services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed repositories; tests can supply in-memory ones.
func NewContainer(deps ContainerDeps) (*Container, error) {
	reg := deps.Repositories
	if reg.CartSessions == nil {
		return nil, errors.New("cart session repository is required")
	}
	if reg.Orders == nil {
		return nil, errors.New("order repository is required")
	}
	if reg.AnalyticsEvents == nil {
		return nil, errors.New("analytics event repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	var logFunc func(context.Context, string, map[string]any)
	if deps.Logger != nil {
		logFunc = observability.ServiceLogFunc(deps.Logger)
	}

	var svc Services

	analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Repository: reg.AnalyticsEvents,
		Publisher:  deps.Publisher,
		Logger:     logFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("build analytics service: %w", err)
	}
	svc.Analytics = analyticsSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository:      reg.CartSessions,
		Analytics:       analyticsSvc,
		Clock:           clock,
		DefaultCurrency: deps.Config.Store.DefaultCurrency,
		Logger:          logFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Repository: reg.Orders,
		Clock:      clock,
		Logger:     logFunc,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:            cartSvc,
		Orders:          orderSvc,
		Clock:           clock,
		Logger:          logFunc,
		DefaultCurrency: deps.Config.Store.DefaultCurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if reg.Health != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: reg.Health,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return nil, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return &Container{
		Config:       deps.Config,
		Repositories: reg,
		Services:     svc,
	}, nil
}
