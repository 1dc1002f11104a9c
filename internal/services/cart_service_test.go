package services

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	domain "github.com/lepax/api/internal/domain"
)

type stubCartRepository struct {
	getFn    func(ctx context.Context, userID string) (domain.Cart, error)
	saveFn   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFn func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{UserID: userID, Lines: []domain.CartLine{}}, nil
}

func (s *stubCartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID)
	}
	return nil
}

type stubCartRecorder struct {
	interactions chan TrackInteractionCommand
}

func (s *stubCartRecorder) TrackInteraction(_ context.Context, cmd TrackInteractionCommand) {
	if s.interactions != nil {
		s.interactions <- cmd
	}
}

func fixedCartClock() time.Time {
	return time.Date(2025, time.July, 10, 9, 30, 0, 0, time.UTC)
}

func newTestCartService(t *testing.T, repo *stubCartRepository, recorder cartEventRecorder) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository:      repo,
		Analytics:       recorder,
		Clock:           fixedCartClock,
		DefaultCurrency: "EUR",
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestCartServiceAddItemCreatesLine(t *testing.T) {
	var saved domain.Cart
	repo := &stubCartRepository{
		saveFn: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "user-1",
		Item:     CartLine{ProductID: 7, Name: "Leather Tote", UnitPriceMinor: 1999},
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Lines))
	}
	line := cart.Lines[0]
	if line.Quantity != 2 || line.ProductID != 7 {
		t.Fatalf("unexpected line %#v", line)
	}
	if line.Currency != "EUR" {
		t.Fatalf("expected default currency applied, got %q", line.Currency)
	}
	if !saved.UpdatedAt.Equal(fixedCartClock()) {
		t.Fatalf("expected clock-driven updatedAt, got %s", saved.UpdatedAt)
	}
}

func TestCartServiceAddItemMergesByProductID(t *testing.T) {
	repo := &stubCartRepository{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines: []domain.CartLine{
					{ProductID: 7, Name: "Leather Tote", UnitPriceMinor: 1999, Currency: "EUR", Quantity: 1},
					{ProductID: 8, Name: "Wool Scarf", UnitPriceMinor: 500, Currency: "EUR", Quantity: 1},
				},
			}, nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "user-1",
		Item:     CartLine{ProductID: 7, Name: "Leather Tote", UnitPriceMinor: 1999},
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if len(cart.Lines) != 2 {
		t.Fatalf("expected merge into existing line, got %d lines", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected quantity 2 after merge, got %d", cart.Lines[0].Quantity)
	}
	if got := cart.TotalMinor(); got != 1999*2+500 {
		t.Fatalf("expected total %d, got %d", 1999*2+500, got)
	}
}

func TestCartServiceAddItemValidatesInput(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{}, nil)
	ctx := context.Background()

	cases := []AddCartItemCommand{
		{UserID: "", Item: CartLine{ProductID: 1}, Quantity: 1},
		{UserID: "user-1", Item: CartLine{ProductID: 0}, Quantity: 1},
		{UserID: "user-1", Item: CartLine{ProductID: 1}, Quantity: 0},
		{UserID: "user-1", Item: CartLine{ProductID: 1, UnitPriceMinor: -5}, Quantity: 1},
	}
	for i, cmd := range cases {
		if _, err := svc.AddItem(ctx, cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("case %d: expected ErrCartInvalidInput, got %v", i, err)
		}
	}
}

func TestCartServiceAddItemRecordsInteraction(t *testing.T) {
	recorder := &stubCartRecorder{interactions: make(chan TrackInteractionCommand, 1)}
	svc := newTestCartService(t, &stubCartRepository{}, recorder)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "user-1",
		Item:     CartLine{ProductID: 7, UnitPriceMinor: 1999},
		Quantity: 1,
	}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	select {
	case cmd := <-recorder.interactions:
		if cmd.Action != "add_to_cart" {
			t.Fatalf("expected add_to_cart action, got %q", cmd.Action)
		}
		if cmd.ProductID == nil || *cmd.ProductID != 7 {
			t.Fatalf("expected product id 7, got %v", cmd.ProductID)
		}
		if cmd.UserID != "user-1" {
			t.Fatalf("expected user id user-1, got %q", cmd.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected interaction event to be recorded")
	}
}

type panickyRecorder struct{}

func (panickyRecorder) TrackInteraction(context.Context, TrackInteractionCommand) {
	panic("analytics backend down")
}

func TestCartServiceAddItemSurvivesAnalyticsFailure(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{}, panickyRecorder{})

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "user-1",
		Item:     CartLine{ProductID: 7, UnitPriceMinor: 1999},
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("AddItem should succeed despite analytics failure: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected cart mutation to stand, got %#v", cart.Lines)
	}
	// Let the detached goroutine finish so its panic recovery runs before the test exits.
	time.Sleep(50 * time.Millisecond)
}

func TestCartServiceRemoveItemAbsentIsNoOp(t *testing.T) {
	saves := 0
	repo := &stubCartRepository{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines:  []domain.CartLine{{ProductID: 7, UnitPriceMinor: 1999, Quantity: 1}},
			}, nil
		},
		saveFn: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			saves++
			return cart, nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	cart, err := svc.RemoveItem(context.Background(), "user-1", 999)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected cart unchanged, got %#v", cart.Lines)
	}
	if saves != 0 {
		t.Fatalf("expected no save for absent product, got %d saves", saves)
	}
}

func TestCartServiceRemoveItemDropsLine(t *testing.T) {
	repo := &stubCartRepository{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Lines: []domain.CartLine{
					{ProductID: 7, UnitPriceMinor: 1999, Quantity: 2},
					{ProductID: 8, UnitPriceMinor: 500, Quantity: 1},
				},
			}, nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	cart, err := svc.RemoveItem(context.Background(), "user-1", 7)
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].ProductID != 8 {
		t.Fatalf("unexpected lines %#v", cart.Lines)
	}
}

func TestCartServiceClear(t *testing.T) {
	deleted := ""
	repo := &stubCartRepository{
		deleteFn: func(_ context.Context, userID string) error {
			deleted = userID
			return nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	if err := svc.Clear(context.Background(), "user-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if deleted != "user-1" {
		t.Fatalf("expected delete for user-1, got %q", deleted)
	}
}

func TestCartServiceAddItemSerializesConcurrentAdds(t *testing.T) {
	var (
		storeMu sync.Mutex
		stored  domain.Cart
	)
	repo := &stubCartRepository{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			storeMu.Lock()
			snapshot := stored
			snapshot.Lines = append([]domain.CartLine(nil), stored.Lines...)
			storeMu.Unlock()
			runtime.Gosched()
			snapshot.UserID = userID
			return snapshot, nil
		},
		saveFn: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			storeMu.Lock()
			stored = cart
			storeMu.Unlock()
			return cart, nil
		},
	}
	svc := newTestCartService(t, repo, nil)

	const workers = 8
	const rounds = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := svc.AddItem(context.Background(), AddCartItemCommand{
					UserID:   "user-1",
					Item:     domain.CartLine{ProductID: 7, Name: "Alpine Mug", UnitPriceMinor: 1299, Currency: "EUR"},
					Quantity: 1,
				})
				if err != nil {
					t.Errorf("AddItem: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	storeMu.Lock()
	defer storeMu.Unlock()
	if len(stored.Lines) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(stored.Lines))
	}
	if got := stored.Lines[0].Quantity; got != workers*rounds {
		t.Fatalf("expected quantity %d after %d adds, got %d", workers*rounds, workers*rounds, got)
	}
}
