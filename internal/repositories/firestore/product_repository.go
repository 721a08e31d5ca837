package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplemarket/api/internal/domain"
	pfirestore "github.com/maplemarket/api/internal/platform/firestore"
	"github.com/maplemarket/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog products from Firestore.
type ProductRepository struct {
	collection *pfirestore.Collection[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		collection: pfirestore.NewCollection[productDocument](provider, productCollection, nil, nil),
	}, nil
}

// FindByID fetches a single product by its document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	entity, err := r.collection.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return entity.Data.toDomain(entity.ID), nil
}

// FindByIDs resolves products in one batch read; absent IDs are simply omitted.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	ids := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		ids = append(ids, trimmed)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entities, err := r.collection.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(entities))
	for _, entity := range entities {
		products = append(products, entity.Data.toDomain(entity.ID))
	}
	return products, nil
}

// ListByShop returns the shop's products, newest first.
func (r *ProductRepository) ListByShop(ctx context.Context, shopID string, publishedOnly bool) ([]domain.Product, error) {
	shop := strings.TrimSpace(shopID)
	if shop == "" {
		return nil, errors.New("product repository: shop id is required")
	}

	entities, err := r.collection.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("shopId", "==", shop)
		if publishedOnly {
			query = query.Where("published", "==", true)
		}
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(entities))
	for _, entity := range entities {
		products = append(products, entity.Data.toDomain(entity.ID))
	}
	return products, nil
}

type productDocument struct {
	ShopID    string    `firestore:"shopId"`
	Name      string    `firestore:"name"`
	Price     int64     `firestore:"price"`
	Quantity  int       `firestore:"quantity"`
	Published bool      `firestore:"published"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		ShopID:    d.ShopID,
		Name:      d.Name,
		Price:     d.Price,
		Quantity:  d.Quantity,
		Published: d.Published,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.ProductRepository = (*ProductRepository)(nil)
