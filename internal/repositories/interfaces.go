package repositories

import (
	"context"

	"github.com/maplemarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Discounts() DiscountRepository
	Carts() CartRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads published catalog products.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs resolves the given product IDs in one batch. Missing products
	// are omitted from the result rather than reported as errors.
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	// ListByShop returns a shop's products, optionally restricted to published ones.
	ListByShop(ctx context.Context, shopID string, publishedOnly bool) ([]domain.Product, error)
}

// DiscountRepository maintains discount definitions and usage state.
type DiscountRepository interface {
	Create(ctx context.Context, discount domain.Discount) (domain.Discount, error)
	Update(ctx context.Context, discount domain.Discount) (domain.Discount, error)
	FindByID(ctx context.Context, discountID string) (domain.Discount, error)
	// FindByCode resolves a discount by its normalized code within a shop.
	FindByCode(ctx context.Context, code string, shopID string) (domain.Discount, error)
	ListByShop(ctx context.Context, shopID string, filter DiscountListFilter) ([]domain.Discount, error)
}

// CartRepository reads cart headers owned by users.
type CartRepository interface {
	Get(ctx context.Context, cartID string) (domain.Cart, error)
	Exists(ctx context.Context, cartID string) (bool, error)
}

// DiscountListFilter narrows shop discount listings.
type DiscountListFilter struct {
	ActiveOnly bool
	Limit      int
}
