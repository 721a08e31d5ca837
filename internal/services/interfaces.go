package services

import (
	"context"
	"time"

	domain "github.com/maplemarket/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	Discount           = domain.Discount
	DiscountValidation = domain.DiscountValidation
	DiscountQuote      = domain.DiscountQuote
	ShopOrderGroup     = domain.ShopOrderGroup
	CheckoutSummary    = domain.CheckoutSummary
	CheckoutLineItem   = domain.CheckoutLineItem
)

// ProductResolver batch-resolves product IDs to authoritative catalog records.
// Only published products are resolvable; absent IDs are missing from the map,
// never an error.
type ProductResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// DiscountService evaluates, applies, and administers shop-scoped discounts.
type DiscountService interface {
	// ValidateDiscount decides whether a code may be applied to one shop order.
	// Ineligibility is reported as data, not as an error.
	ValidateDiscount(ctx context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error)
	// ApplyDiscount computes the monetary discount for server-resolved lines.
	ApplyDiscount(discount Discount, lines []PricedLine) DiscountQuote

	CreateDiscount(ctx context.Context, cmd CreateDiscountCommand) (Discount, error)
	UpdateDiscount(ctx context.Context, cmd UpdateDiscountCommand) (Discount, error)
	ListShopDiscounts(ctx context.Context, shopID string, filter DiscountListFilter) ([]Discount, error)
	ListDiscountProducts(ctx context.Context, code string, shopID string) ([]Product, error)
	PreviewDiscountAmount(ctx context.Context, cmd PreviewDiscountCommand) (DiscountQuote, error)
}

// CheckoutService produces the authoritative, price-correct checkout summary.
type CheckoutService interface {
	ReviewCheckout(ctx context.Context, cmd ReviewCheckoutCommand) (CheckoutSummary, error)
}

// ShippingFeeCalculator prices shipping for a reviewed checkout. The default
// implementation returns zero until a carrier integration lands.
type ShippingFeeCalculator func(ctx context.Context, lines []CheckoutLineItem) int64

// FlatShippingFee returns a calculator charging a fixed fee once any line exists.
func FlatShippingFee(fee int64) ShippingFeeCalculator {
	return func(_ context.Context, lines []CheckoutLineItem) int64 {
		if fee <= 0 || len(lines) == 0 {
			return 0
		}
		return fee
	}
}

// ReviewPublisher emits checkout review events to downstream consumers.
type ReviewPublisher interface {
	PublishReviewed(ctx context.Context, event ReviewedEvent) error
}

// ReviewedEvent is the payload published after a successful checkout review.
type ReviewedEvent struct {
	ReviewID      string    `json:"review_id"`
	UserID        string    `json:"user_id"`
	CartID        string    `json:"cart_id"`
	TotalShops    int       `json:"total_shops"`
	TotalItems    int       `json:"total_items"`
	TotalPrice    int64     `json:"total_price"`
	TotalDiscount int64     `json:"total_discount"`
	TotalCheckout int64     `json:"total_checkout"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// ValidateDiscountCommand carries the inputs for a single eligibility decision.
type ValidateDiscountCommand struct {
	Code        string
	DiscountID  string
	ShopID      string
	UserID      string
	OrderAmount int64
}

// PricedLine is one server-resolved order line used for discount math.
type PricedLine struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

// CreateDiscountCommand describes a new discount definition.
type CreateDiscountCommand struct {
	ShopID         string
	Code           string
	Name           string
	Description    string
	Type           domain.DiscountType
	Value          int64
	StartsAt       time.Time
	EndsAt         time.Time
	MinOrderValue  *int64
	MaxUses        *int
	MaxUsesPerUser *int
	AppliesTo      domain.DiscountAppliesTo
	ProductIDs     []string
}

// UpdateDiscountCommand applies partial changes to an existing discount.
// Usage counters and the usage ledger are never client-writable.
type UpdateDiscountCommand struct {
	DiscountID     string
	ShopID         string
	Name           *string
	Description    *string
	Value          *int64
	StartsAt       *time.Time
	EndsAt         *time.Time
	Active         *bool
	MinOrderValue  *int64
	MaxUses        *int
	MaxUsesPerUser *int
	AppliesTo      *domain.DiscountAppliesTo
	ProductIDs     []string
}

// DiscountListFilter narrows shop discount listings.
type DiscountListFilter struct {
	ActiveOnly bool
	Limit      int
}

// PreviewDiscountCommand composes validation and application for one shop order.
type PreviewDiscountCommand struct {
	UserID string
	ShopID string
	Code   string
	Items  []PricedLine
}

// ReviewCheckoutCommand is the full checkout review request.
type ReviewCheckoutCommand struct {
	UserID string
	CartID string
	Groups []ShopOrderGroup
}
