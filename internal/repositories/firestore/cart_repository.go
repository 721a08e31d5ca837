package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/maplemarket/api/internal/domain"
	pfirestore "github.com/maplemarket/api/internal/platform/firestore"
	"github.com/maplemarket/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository reads cart headers from Firestore.
type CartRepository struct {
	collection *pfirestore.Collection[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		collection: pfirestore.NewCollection[cartDocument](provider, cartCollection, nil, nil),
	}, nil
}

// Get fetches the cart header by ID.
func (r *CartRepository) Get(ctx context.Context, cartID string) (domain.Cart, error) {
	entity, err := r.collection.Get(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return entity.Data.toDomain(entity.ID), nil
}

// Exists reports whether the cart document is present.
func (r *CartRepository) Exists(ctx context.Context, cartID string) (bool, error) {
	return r.collection.Exists(ctx, cartID)
}

type cartDocument struct {
	UserID    string    `firestore:"userId"`
	State     string    `firestore:"state"`
	ItemCount int       `firestore:"itemCount"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d cartDocument) toDomain(id string) domain.Cart {
	return domain.Cart{
		ID:        id,
		UserID:    d.UserID,
		State:     d.State,
		ItemCount: d.ItemCount,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.CartRepository = (*CartRepository)(nil)
