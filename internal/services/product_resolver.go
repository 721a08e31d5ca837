package services

import (
	"context"
	"errors"
	"strings"

	domain "github.com/maplemarket/api/internal/domain"
	"github.com/maplemarket/api/internal/repositories"
)

// ProductResolverDeps bundles dependencies required to construct a ProductResolver.
type ProductResolverDeps struct {
	Products repositories.ProductRepository
}

type productResolver struct {
	products repositories.ProductRepository
}

// NewProductResolver wires a ProductResolver backed by the product repository.
func NewProductResolver(deps ProductResolverDeps) (ProductResolver, error) {
	if deps.Products == nil {
		return nil, errors.New("product resolver: product repository is required")
	}
	return &productResolver{products: deps.Products}, nil
}

// Resolve de-duplicates the requested IDs and issues one batch read. Unknown
// and unpublished IDs are simply absent from the returned map.
func (r *productResolver) Resolve(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	if len(unique) == 0 {
		return map[string]domain.Product{}, nil
	}

	products, err := r.products.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]domain.Product, len(products))
	for _, product := range products {
		if !product.Published {
			continue
		}
		resolved[product.ID] = product
	}
	return resolved, nil
}
