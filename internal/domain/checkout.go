package domain

import "time"

// CheckoutItem is the per-product breakdown inside a shop line item.
type CheckoutItem struct {
	ProductID      string
	ProductName    string
	ProductPrice   int64
	Quantity       int
	Subtotal       int64
	RemainingStock int
}

// DiscountDetail records the discount chosen for a shop line item.
type DiscountDetail struct {
	Code          string
	Amount        int64
	Type          DiscountType
	OriginalOrder int64
	FinalPrice    int64
}

// CheckoutLineMetadata summarises discount effects for one shop line.
type CheckoutLineMetadata struct {
	HasDiscount        bool
	DiscountPercentage string
	OriginalPrice      int64
	FinalPrice         int64
}

// CheckoutLineItem aggregates the priced result for a single shop order group.
type CheckoutLineItem struct {
	ShopID             string
	PriceRaw           int64
	PriceApplyDiscount int64
	DiscountAmount     int64
	DiscountDetails    []DiscountDetail
	Items              []CheckoutItem
	Metadata           CheckoutLineMetadata
}

// CheckoutTotals holds the order-level accumulators for a checkout review.
type CheckoutTotals struct {
	Price       int64
	ShippingFee int64
	Discount    int64
	Checkout    int64
}

// CheckoutMetadata describes the request that produced a checkout summary.
type CheckoutMetadata struct {
	ReviewID    string
	TotalShops  int
	TotalItems  int
	ProcessedAt time.Time
	UserID      string
	CartID      string
}

// CheckoutSummary is the authoritative, price-correct result of a checkout review.
type CheckoutSummary struct {
	Lines    []CheckoutLineItem
	Totals   CheckoutTotals
	Metadata CheckoutMetadata
}
