package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/maplemarket/api/internal/platform/firestore"
	"github.com/maplemarket/api/internal/repositories"
)

// Registry assembles the Firestore-backed repositories over a shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	discounts *DiscountRepository
	carts     *CartRepository
}

// NewRegistry wires every repository against the given provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		products:  products,
		discounts: discounts,
		carts:     carts,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Products returns the product repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Discounts returns the discount repository.
func (r *Registry) Discounts() repositories.DiscountRepository { return r.discounts }

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Ensure interface compliance.
var _ repositories.Registry = (*Registry)(nil)
