package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplemarket/api/internal/domain"
	"github.com/maplemarket/api/internal/repositories"
)

const (
	defaultMaxShopGroups   = 20
	defaultMaxItemsPerShop = 100
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutCartNotFound indicates the referenced cart does not exist.
	ErrCheckoutCartNotFound = errors.New("checkout: cart not found")
	// ErrCheckoutBadRequest marks hard failures that abort the whole review.
	ErrCheckoutBadRequest = errors.New("checkout: bad request")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Products  ProductResolver
	Discounts DiscountService
	Shipping  ShippingFeeCalculator
	Publisher ReviewPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)

	// Request shape limits; zero values fall back to defaults.
	MaxShopGroups   int
	MaxItemsPerShop int
}

type checkoutService struct {
	carts     repositories.CartRepository
	products  ProductResolver
	discounts DiscountService
	shipping  ShippingFeeCalculator
	publisher ReviewPublisher
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)

	maxShopGroups   int
	maxItemsPerShop int
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product resolver is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("checkout service: discount service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	shipping := deps.Shipping
	if shipping == nil {
		shipping = func(context.Context, []CheckoutLineItem) int64 { return 0 }
	}
	maxGroups := deps.MaxShopGroups
	if maxGroups <= 0 {
		maxGroups = defaultMaxShopGroups
	}
	maxItems := deps.MaxItemsPerShop
	if maxItems <= 0 {
		maxItems = defaultMaxItemsPerShop
	}

	return &checkoutService{
		carts:           deps.Carts,
		products:        deps.Products,
		discounts:       deps.Discounts,
		shipping:        shipping,
		publisher:       deps.Publisher,
		now:             func() time.Time { return clock().UTC() },
		logger:          logger,
		maxShopGroups:   maxGroups,
		maxItemsPerShop: maxItems,
	}, nil
}

// ReviewCheckout verifies the cart, resolves every product in one batch, and
// assembles the authoritative per-shop and order-level pricing summary.
// Missing products and stock violations abort the whole call; discount
// problems degrade the affected shop to "no discount applied".
func (s *checkoutService) ReviewCheckout(ctx context.Context, cmd ReviewCheckoutCommand) (CheckoutSummary, error) {
	userID := strings.TrimSpace(cmd.UserID)
	cartID := strings.TrimSpace(cmd.CartID)
	if userID == "" || cartID == "" || len(cmd.Groups) == 0 {
		return CheckoutSummary{}, ErrCheckoutInvalidInput
	}
	if len(cmd.Groups) > s.maxShopGroups {
		return CheckoutSummary{}, fmt.Errorf("%w: too many shop groups", ErrCheckoutBadRequest)
	}

	exists, err := s.carts.Exists(ctx, cartID)
	if err != nil {
		return CheckoutSummary{}, s.translateCartError(err)
	}
	if !exists {
		return CheckoutSummary{}, ErrCheckoutCartNotFound
	}

	summary, err := s.buildSummary(ctx, userID, cartID, cmd.Groups)
	if err != nil {
		if isHardCheckoutError(err) {
			return CheckoutSummary{}, err
		}
		// Unexpected internal failure: keep the external message generic,
		// log the cause before discarding it.
		s.logger(ctx, "checkout.review_failed", map[string]any{
			"userId": userID,
			"cartId": cartID,
			"error":  err.Error(),
		})
		return CheckoutSummary{}, fmt.Errorf("%w: checkout review failed", ErrCheckoutBadRequest)
	}

	s.publishReviewed(ctx, summary)
	return summary, nil
}

func (s *checkoutService) buildSummary(ctx context.Context, userID, cartID string, groups []ShopOrderGroup) (CheckoutSummary, error) {
	resolved, err := s.products.Resolve(ctx, collectProductIDs(groups))
	if err != nil {
		return CheckoutSummary{}, s.translateCartError(err)
	}

	var (
		lines      = make([]CheckoutLineItem, 0, len(groups))
		totals     domain.CheckoutTotals
		totalItems int
	)
	for _, group := range groups {
		line, err := s.buildShopLine(ctx, userID, group, resolved)
		if err != nil {
			return CheckoutSummary{}, err
		}
		lines = append(lines, line)
		totals.Price += line.PriceRaw
		totals.Discount += line.DiscountAmount
		totalItems += len(group.Items)
	}

	totals.ShippingFee = s.shipping(ctx, lines)
	totals.Checkout = totals.Price - totals.Discount + totals.ShippingFee

	return CheckoutSummary{
		Lines:  lines,
		Totals: totals,
		Metadata: domain.CheckoutMetadata{
			ReviewID:    ulid.Make().String(),
			TotalShops:  len(lines),
			TotalItems:  totalItems,
			ProcessedAt: s.now(),
			UserID:      userID,
			CartID:      cartID,
		},
	}, nil
}

func (s *checkoutService) buildShopLine(ctx context.Context, userID string, group ShopOrderGroup, resolved map[string]domain.Product) (CheckoutLineItem, error) {
	shopID := strings.TrimSpace(group.ShopID)
	if shopID == "" || len(group.Items) == 0 {
		return CheckoutLineItem{}, fmt.Errorf("%w: malformed shop order group", ErrCheckoutBadRequest)
	}
	if len(group.Items) > s.maxItemsPerShop {
		return CheckoutLineItem{}, fmt.Errorf("%w: too many items for shop %s", ErrCheckoutBadRequest, shopID)
	}

	// Catalog membership is settled for the whole group before any stock
	// check runs, so a response never names a stock shortfall while an
	// unknown product id goes unreported.
	var missing []string
	for _, item := range group.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			return CheckoutLineItem{}, fmt.Errorf("%w: malformed order item for shop %s", ErrCheckoutBadRequest, shopID)
		}
		if _, ok := resolved[productID]; !ok {
			missing = append(missing, productID)
		}
	}
	if len(missing) > 0 {
		return CheckoutLineItem{}, fmt.Errorf("%w: products not found: %s", ErrCheckoutBadRequest, strings.Join(missing, ", "))
	}

	var (
		priced = make([]PricedLine, 0, len(group.Items))
		items  = make([]domain.CheckoutItem, 0, len(group.Items))
		raw    int64
	)
	for _, item := range group.Items {
		productID := strings.TrimSpace(item.ProductID)
		product := resolved[productID]
		if product.Quantity < item.Quantity {
			return CheckoutLineItem{}, fmt.Errorf("%w: insufficient stock for product %s", ErrCheckoutBadRequest, productID)
		}

		subtotal := product.Price * int64(item.Quantity)
		raw += subtotal
		priced = append(priced, PricedLine{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		items = append(items, domain.CheckoutItem{
			ProductID:      productID,
			ProductName:    product.Name,
			ProductPrice:   product.Price,
			Quantity:       item.Quantity,
			Subtotal:       subtotal,
			RemainingStock: product.Quantity - item.Quantity,
		})
	}

	line := CheckoutLineItem{
		ShopID:             shopID,
		PriceRaw:           raw,
		PriceApplyDiscount: raw,
		Items:              items,
		DiscountDetails:    []domain.DiscountDetail{},
		Metadata: domain.CheckoutLineMetadata{
			DiscountPercentage: effectivePercentage(DiscountQuote{TotalOrder: raw}),
			OriginalPrice:      raw,
			FinalPrice:         raw,
		},
	}

	s.applyFirstValidDiscount(ctx, userID, group, priced, &line)
	return line, nil
}

// applyFirstValidDiscount evaluates candidate codes in submission order and
// applies the first eligible one. Failures here never abort the review; the
// shop falls back to no discount.
func (s *checkoutService) applyFirstValidDiscount(ctx context.Context, userID string, group ShopOrderGroup, priced []PricedLine, line *CheckoutLineItem) {
	for _, ref := range group.Discounts {
		validation, err := s.discounts.ValidateDiscount(ctx, ValidateDiscountCommand{
			Code:        ref.Code,
			DiscountID:  ref.DiscountID,
			ShopID:      group.ShopID,
			UserID:      userID,
			OrderAmount: line.PriceRaw,
		})
		if err != nil {
			s.logger(ctx, "checkout.discount_degraded", map[string]any{
				"shopId": group.ShopID,
				"code":   ref.Code,
				"error":  err.Error(),
			})
			return
		}
		if !validation.Eligible || validation.Discount == nil {
			continue
		}

		discount := *validation.Discount
		quote := s.discounts.ApplyDiscount(discount, priced)
		line.DiscountAmount = quote.Amount
		line.PriceApplyDiscount = quote.FinalPrice
		line.DiscountDetails = []domain.DiscountDetail{{
			Code:          discount.Code,
			Amount:        quote.Amount,
			Type:          discount.Type,
			OriginalOrder: quote.TotalOrder,
			FinalPrice:    quote.FinalPrice,
		}}
		line.Metadata = domain.CheckoutLineMetadata{
			HasDiscount:        true,
			DiscountPercentage: effectivePercentage(quote),
			OriginalPrice:      quote.TotalOrder,
			FinalPrice:         quote.FinalPrice,
		}
		return
	}
}

func (s *checkoutService) publishReviewed(ctx context.Context, summary CheckoutSummary) {
	if s.publisher == nil {
		return
	}
	event := ReviewedEvent{
		ReviewID:      summary.Metadata.ReviewID,
		UserID:        summary.Metadata.UserID,
		CartID:        summary.Metadata.CartID,
		TotalShops:    summary.Metadata.TotalShops,
		TotalItems:    summary.Metadata.TotalItems,
		TotalPrice:    summary.Totals.Price,
		TotalDiscount: summary.Totals.Discount,
		TotalCheckout: summary.Totals.Checkout,
		ProcessedAt:   summary.Metadata.ProcessedAt,
	}

	// Best effort: publishing runs detached from the request lifecycle and
	// never fails the review.
	go func(ctx context.Context) {
		if err := s.publisher.PublishReviewed(ctx, event); err != nil {
			s.logger(ctx, "checkout.publish_failed", map[string]any{
				"reviewId": event.ReviewID,
				"error":    err.Error(),
			})
		}
	}(context.WithoutCancel(ctx))
}

func (s *checkoutService) translateCartError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutCartNotFound
		default:
			return ErrCheckoutUnavailable
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrCheckoutUnavailable
}

func isHardCheckoutError(err error) bool {
	return errors.Is(err, ErrCheckoutBadRequest) ||
		errors.Is(err, ErrCheckoutCartNotFound) ||
		errors.Is(err, ErrCheckoutInvalidInput) ||
		errors.Is(err, ErrCheckoutUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func collectProductIDs(groups []ShopOrderGroup) []string {
	var ids []string
	for _, group := range groups {
		for _, item := range group.Items {
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// effectivePercentage renders the share of the order the discount covers as a
// two-decimal string, e.g. "15.38". A zero-priced order reports "0".
func effectivePercentage(quote DiscountQuote) string {
	if quote.TotalOrder <= 0 {
		return "0"
	}
	return fmt.Sprintf("%.2f", float64(quote.Amount)*100/float64(quote.TotalOrder))
}
