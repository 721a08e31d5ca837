package domain

import (
	"strings"
	"time"
)

// Product is the authoritative catalog projection consumed by checkout pricing.
// Prices are stored in minor currency units.
type Product struct {
	ID        string
	ShopID    string
	Name      string
	Price     int64
	Quantity  int
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DiscountType enumerates supported discount calculation strategies.
type DiscountType string

const (
	// DiscountTypeFixedAmount subtracts a fixed value from the order total.
	DiscountTypeFixedAmount DiscountType = "fixed_amount"
	// DiscountTypePercent subtracts value percent of the order total.
	DiscountTypePercent DiscountType = "percent"
)

// DiscountAppliesTo scopes which products a discount covers.
type DiscountAppliesTo string

const (
	// DiscountAppliesToAll covers every published product of the owning shop.
	DiscountAppliesToAll DiscountAppliesTo = "all"
	// DiscountAppliesToSpecific covers only the configured product id list.
	DiscountAppliesToSpecific DiscountAppliesTo = "specific"
)

// Discount describes a shop-scoped promotional code and its eligibility rules.
type Discount struct {
	ID             string
	ShopID         string
	Code           string
	Name           string
	Description    string
	Type           DiscountType
	Value          int64
	StartsAt       time.Time
	EndsAt         time.Time
	Active         bool
	MinOrderValue  *int64
	MaxUses        *int
	UsesCount      int
	MaxUsesPerUser *int
	AppliesTo      DiscountAppliesTo
	ProductIDs     []string
	UsersUsed      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeDiscountCode canonicalises a user-supplied discount code so that
// lookups and comparisons are case and whitespace insensitive.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// RemainingUses reports how many global redemptions are left, or -1 when uncapped.
func (d Discount) RemainingUses() int {
	if d.MaxUses == nil {
		return -1
	}
	remaining := *d.MaxUses - d.UsesCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UserUsageCount counts how often the given user appears in the usage ledger.
func (d Discount) UserUsageCount(userID string) int {
	count := 0
	for _, id := range d.UsersUsed {
		if id == userID {
			count++
		}
	}
	return count
}

// DiscountValidation is the outcome of evaluating a discount for one shop order.
// Ineligibility is a normal result carried in data, never an error.
type DiscountValidation struct {
	Eligible bool
	Reason   string
	Discount *Discount
}

// DiscountQuote captures the monetary result of applying a discount.
type DiscountQuote struct {
	TotalOrder int64
	Amount     int64
	FinalPrice int64
}

// OrderItem is one requested product line inside a shop order group.
type OrderItem struct {
	ProductID string
	Quantity  int
}

// DiscountRef identifies a candidate discount submitted with a shop order group.
type DiscountRef struct {
	DiscountID string
	Code       string
}

// ShopOrderGroup is the subset of a checkout request belonging to one shop.
type ShopOrderGroup struct {
	ShopID    string
	Items     []OrderItem
	Discounts []DiscountRef
}

// Cart is the stored cart header. Checkout review only verifies its existence;
// line items are taken from the request payload.
type Cart struct {
	ID        string
	UserID    string
	State     string
	ItemCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}
