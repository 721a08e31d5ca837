package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/maplemarket/api/internal/domain"
)

type stubCartRepository struct {
	getFunc    func(ctx context.Context, cartID string) (domain.Cart, error)
	existsFunc func(ctx context.Context, cartID string) (bool, error)
}

func (s *stubCartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.getFunc == nil {
		return domain.Cart{}, stubRepoError{notFound: true}
	}
	return s.getFunc(ctx, cartID)
}

func (s *stubCartRepository) Exists(ctx context.Context, cartID string) (bool, error) {
	if s.existsFunc == nil {
		return true, nil
	}
	return s.existsFunc(ctx, cartID)
}

type stubProductResolver struct {
	resolveFunc func(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

func (s *stubProductResolver) Resolve(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	if s.resolveFunc == nil {
		return map[string]domain.Product{}, nil
	}
	return s.resolveFunc(ctx, ids)
}

type stubDiscountService struct {
	validateFunc func(ctx context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error)
	applyFunc    func(discount Discount, lines []PricedLine) DiscountQuote
}

func (s *stubDiscountService) ValidateDiscount(ctx context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error) {
	if s.validateFunc == nil {
		return DiscountValidation{Reason: "discount not found"}, nil
	}
	return s.validateFunc(ctx, cmd)
}

func (s *stubDiscountService) ApplyDiscount(discount Discount, lines []PricedLine) DiscountQuote {
	if s.applyFunc == nil {
		var total int64
		for _, line := range lines {
			total += line.UnitPrice * int64(line.Quantity)
		}
		amount := discount.Value
		if amount > total {
			amount = total
		}
		return DiscountQuote{TotalOrder: total, Amount: amount, FinalPrice: total - amount}
	}
	return s.applyFunc(discount, lines)
}

func (s *stubDiscountService) CreateDiscount(context.Context, CreateDiscountCommand) (Discount, error) {
	return Discount{}, errors.New("not implemented")
}

func (s *stubDiscountService) UpdateDiscount(context.Context, UpdateDiscountCommand) (Discount, error) {
	return Discount{}, errors.New("not implemented")
}

func (s *stubDiscountService) ListShopDiscounts(context.Context, string, DiscountListFilter) ([]Discount, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDiscountService) ListDiscountProducts(context.Context, string, string) ([]Product, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDiscountService) PreviewDiscountAmount(context.Context, PreviewDiscountCommand) (DiscountQuote, error) {
	return DiscountQuote{}, errors.New("not implemented")
}

type stubReviewPublisher struct {
	mu     sync.Mutex
	events []ReviewedEvent
	err    error
	done   chan struct{}
}

func (s *stubReviewPublisher) PublishReviewed(_ context.Context, event ReviewedEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	if s.done != nil {
		close(s.done)
	}
	return s.err
}

func catalogResolver(products ...domain.Product) *stubProductResolver {
	return &stubProductResolver{
		resolveFunc: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
			resolved := make(map[string]domain.Product)
			for _, product := range products {
				for _, id := range ids {
					if id == product.ID {
						resolved[id] = product
					}
				}
			}
			return resolved, nil
		},
	}
}

func newCheckoutServiceForTest(t *testing.T, deps CheckoutServiceDeps) CheckoutService {
	t.Helper()
	if deps.Carts == nil {
		deps.Carts = &stubCartRepository{}
	}
	if deps.Products == nil {
		deps.Products = &stubProductResolver{}
	}
	if deps.Discounts == nil {
		deps.Discounts = &stubDiscountService{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(testNow)
	}
	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("failed to build checkout service: %v", err)
	}
	return svc
}

func singleGroup(shopID string, items []domain.OrderItem, discounts ...domain.DiscountRef) []ShopOrderGroup {
	return []ShopOrderGroup{{ShopID: shopID, Items: items, Discounts: discounts}}
}

func TestReviewCheckoutComputesTotals(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 500, Quantity: 10, Published: true},
		domain.Product{ID: "p2", ShopID: "shop-1", Name: "Plate", Price: 300, Quantity: 4, Published: true},
	)
	discounts := &stubDiscountService{
		validateFunc: func(_ context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error) {
			discount := activeDiscount()
			discount.Type = domain.DiscountTypeFixedAmount
			discount.Value = 200
			return DiscountValidation{Eligible: true, Discount: &discount}, nil
		},
	}

	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{
		Products:  resolver,
		Discounts: discounts,
		Shipping:  FlatShippingFee(100),
	})

	summary, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1",
			[]domain.OrderItem{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}},
			domain.DiscountRef{Code: "SPRING10"},
		),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary.Lines) != 1 {
		t.Fatalf("expected one shop line, got %d", len(summary.Lines))
	}
	line := summary.Lines[0]
	if line.PriceRaw != 1300 {
		t.Fatalf("expected raw total 1300, got %d", line.PriceRaw)
	}
	if line.DiscountAmount != 200 || line.PriceApplyDiscount != 1100 {
		t.Fatalf("unexpected discount math %d / %d", line.DiscountAmount, line.PriceApplyDiscount)
	}
	if !line.Metadata.HasDiscount {
		t.Fatalf("expected discount metadata flag set")
	}
	if line.Metadata.DiscountPercentage != "15.38" {
		t.Fatalf("expected two-decimal percentage 15.38, got %q", line.Metadata.DiscountPercentage)
	}
	if len(line.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(line.Items))
	}
	if line.Items[0].RemainingStock != 8 {
		t.Fatalf("expected remaining stock 8, got %d", line.Items[0].RemainingStock)
	}

	totals := summary.Totals
	if totals.Price != 1300 || totals.Discount != 200 || totals.ShippingFee != 100 {
		t.Fatalf("unexpected totals %#v", totals)
	}
	if totals.Checkout != totals.Price-totals.Discount+totals.ShippingFee {
		t.Fatalf("grand total identity violated: %#v", totals)
	}

	meta := summary.Metadata
	if meta.ReviewID == "" {
		t.Fatalf("expected review id assigned")
	}
	if meta.TotalShops != 1 || meta.TotalItems != 2 {
		t.Fatalf("unexpected metadata %#v", meta)
	}
	if meta.UserID != "user-1" || meta.CartID != "cart-1" {
		t.Fatalf("unexpected metadata identity %#v", meta)
	}
	if !meta.ProcessedAt.Equal(testNow) {
		t.Fatalf("expected processedAt from clock, got %v", meta.ProcessedAt)
	}
}

func TestReviewCheckoutMissingProductFailsHard(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 500, Quantity: 10, Published: true},
	)
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{Products: resolver})

	_, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1", []domain.OrderItem{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "ghost", Quantity: 1},
		}),
	})
	if !errors.Is(err, ErrCheckoutBadRequest) {
		t.Fatalf("expected ErrCheckoutBadRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected missing product named in error, got %q", err.Error())
	}
}

func TestReviewCheckoutMissingProductReportedBeforeStock(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p2", ShopID: "shop-1", Name: "Plate", Price: 300, Quantity: 1, Published: true},
	)
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{Products: resolver})

	// The same group carries an unknown id and a known product whose stock is
	// short. The unknown id wins the error, not the stock shortfall.
	_, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1", []domain.OrderItem{
			{ProductID: "ghost", Quantity: 1},
			{ProductID: "p2", Quantity: 5},
		}),
	})
	if !errors.Is(err, ErrCheckoutBadRequest) {
		t.Fatalf("expected ErrCheckoutBadRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected missing product named in error, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "insufficient stock") {
		t.Fatalf("expected missing products to outrank stock errors, got %q", err.Error())
	}
}

func TestReviewCheckoutInsufficientStockFailsHard(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 500, Quantity: 1, Published: true},
	)
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{Products: resolver})

	_, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1", []domain.OrderItem{{ProductID: "p1", Quantity: 3}}),
	})
	if !errors.Is(err, ErrCheckoutBadRequest) {
		t.Fatalf("expected ErrCheckoutBadRequest, got %v", err)
	}
	if !strings.Contains(err.Error(), "p1") {
		t.Fatalf("expected product named in stock error, got %q", err.Error())
	}
}

func TestReviewCheckoutCartNotFound(t *testing.T) {
	carts := &stubCartRepository{
		existsFunc: func(context.Context, string) (bool, error) { return false, nil },
	}
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{Carts: carts})

	_, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-404",
		Groups: singleGroup("shop-1", []domain.OrderItem{{ProductID: "p1", Quantity: 1}}),
	})
	if !errors.Is(err, ErrCheckoutCartNotFound) {
		t.Fatalf("expected ErrCheckoutCartNotFound, got %v", err)
	}
}

func TestReviewCheckoutInvalidInput(t *testing.T) {
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{})

	cases := []ReviewCheckoutCommand{
		{CartID: "cart-1", Groups: singleGroup("shop-1", []domain.OrderItem{{ProductID: "p1", Quantity: 1}})},
		{UserID: "user-1", Groups: singleGroup("shop-1", []domain.OrderItem{{ProductID: "p1", Quantity: 1}})},
		{UserID: "user-1", CartID: "cart-1"},
	}
	for i, cmd := range cases {
		if _, err := svc.ReviewCheckout(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
			t.Fatalf("case %d: expected ErrCheckoutInvalidInput, got %v", i, err)
		}
	}
}

func TestReviewCheckoutDiscountFailureDegrades(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 500, Quantity: 10, Published: true},
	)
	discounts := &stubDiscountService{
		validateFunc: func(context.Context, ValidateDiscountCommand) (DiscountValidation, error) {
			return DiscountValidation{}, ErrDiscountUnavailable
		},
	}

	var events []string
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{
		Products:  resolver,
		Discounts: discounts,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})

	summary, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1",
			[]domain.OrderItem{{ProductID: "p1", Quantity: 1}},
			domain.DiscountRef{Code: "BROKEN"},
		),
	})
	if err != nil {
		t.Fatalf("expected soft failure, got %v", err)
	}

	line := summary.Lines[0]
	if line.DiscountAmount != 0 || line.PriceApplyDiscount != line.PriceRaw {
		t.Fatalf("expected no discount applied, got %#v", line)
	}
	if line.Metadata.HasDiscount {
		t.Fatalf("expected discount metadata cleared")
	}
	if line.Metadata.DiscountPercentage != "0.00" {
		t.Fatalf("expected zero percentage, got %q", line.Metadata.DiscountPercentage)
	}
	if len(line.DiscountDetails) != 0 {
		t.Fatalf("expected empty discount details, got %#v", line.DiscountDetails)
	}

	found := false
	for _, event := range events {
		if event == "checkout.discount_degraded" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected degradation logged, got %v", events)
	}
}

func TestReviewCheckoutFirstValidDiscountWins(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 1000, Quantity: 10, Published: true},
	)

	first := activeDiscount()
	first.Code = "FIRST"
	first.Type = domain.DiscountTypeFixedAmount
	first.Value = 100

	second := activeDiscount()
	second.Code = "SECOND"
	second.Type = domain.DiscountTypeFixedAmount
	second.Value = 999

	var validated []string
	discounts := &stubDiscountService{
		validateFunc: func(_ context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error) {
			validated = append(validated, cmd.Code)
			switch cmd.Code {
			case "INVALID":
				return DiscountValidation{Reason: "discount has expired"}, nil
			case "FIRST":
				return DiscountValidation{Eligible: true, Discount: &first}, nil
			default:
				return DiscountValidation{Eligible: true, Discount: &second}, nil
			}
		},
	}

	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{Products: resolver, Discounts: discounts})

	summary, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1",
			[]domain.OrderItem{{ProductID: "p1", Quantity: 1}},
			domain.DiscountRef{Code: "INVALID"},
			domain.DiscountRef{Code: "FIRST"},
			domain.DiscountRef{Code: "SECOND"},
		),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := summary.Lines[0]
	if len(line.DiscountDetails) != 1 || line.DiscountDetails[0].Code != "FIRST" {
		t.Fatalf("expected FIRST applied, got %#v", line.DiscountDetails)
	}
	if line.DiscountAmount != 100 {
		t.Fatalf("expected amount 100, got %d", line.DiscountAmount)
	}
	if len(validated) != 2 {
		t.Fatalf("expected evaluation to stop after first valid code, validated %v", validated)
	}
}

func TestReviewCheckoutGroupLimits(t *testing.T) {
	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{MaxShopGroups: 2})

	groups := []ShopOrderGroup{
		{ShopID: "s1", Items: []domain.OrderItem{{ProductID: "p1", Quantity: 1}}},
		{ShopID: "s2", Items: []domain.OrderItem{{ProductID: "p2", Quantity: 1}}},
		{ShopID: "s3", Items: []domain.OrderItem{{ProductID: "p3", Quantity: 1}}},
	}

	_, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: groups,
	})
	if !errors.Is(err, ErrCheckoutBadRequest) {
		t.Fatalf("expected ErrCheckoutBadRequest for too many groups, got %v", err)
	}
}

func TestReviewCheckoutPublishesEvent(t *testing.T) {
	resolver := catalogResolver(
		domain.Product{ID: "p1", ShopID: "shop-1", Name: "Mug", Price: 500, Quantity: 10, Published: true},
	)
	publisher := &stubReviewPublisher{done: make(chan struct{})}

	svc := newCheckoutServiceForTest(t, CheckoutServiceDeps{
		Products:  resolver,
		Publisher: publisher,
	})

	summary, err := svc.ReviewCheckout(context.Background(), ReviewCheckoutCommand{
		UserID: "user-1",
		CartID: "cart-1",
		Groups: singleGroup("shop-1", []domain.OrderItem{{ProductID: "p1", Quantity: 2}}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-publisher.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event published")
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.ReviewID != summary.Metadata.ReviewID {
		t.Fatalf("expected event review id %s, got %s", summary.Metadata.ReviewID, event.ReviewID)
	}
	if event.TotalCheckout != summary.Totals.Checkout {
		t.Fatalf("expected grand total carried on event")
	}
}
