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

const (
	discountCollection       = "discounts"
	discountDefaultListLimit = 50
)

// DiscountRepository persists discount definitions in Firestore.
type DiscountRepository struct {
	collection *pfirestore.Collection[discountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		collection: pfirestore.NewCollection[discountDocument](provider, discountCollection, nil, nil),
	}, nil
}

// Create stores a new discount. The code must be unique within the shop; the
// caller checks for an existing code before calling, and the document ID is
// derived from shop and code so a concurrent duplicate collapses onto the
// same document instead of creating a second definition.
func (r *DiscountRepository) Create(ctx context.Context, discount domain.Discount) (domain.Discount, error) {
	if strings.TrimSpace(discount.ID) == "" {
		return domain.Discount{}, errors.New("discount repository: discount id is required")
	}
	doc := encodeDiscount(discount)
	result, err := r.collection.Set(ctx, discount.ID, doc)
	if err != nil {
		return domain.Discount{}, err
	}
	discount.UpdatedAt = result.UpdateTime
	return discount, nil
}

// Update replaces the stored discount definition. Returns a not-found
// categorised error when the document is absent.
func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) (domain.Discount, error) {
	id := strings.TrimSpace(discount.ID)
	if id == "" {
		return domain.Discount{}, errors.New("discount repository: discount id is required")
	}
	if _, err := r.collection.Get(ctx, id); err != nil {
		return domain.Discount{}, err
	}
	result, err := r.collection.Set(ctx, id, encodeDiscount(discount))
	if err != nil {
		return domain.Discount{}, err
	}
	discount.UpdatedAt = result.UpdateTime
	return discount, nil
}

// FindByID fetches a discount by document ID.
func (r *DiscountRepository) FindByID(ctx context.Context, discountID string) (domain.Discount, error) {
	entity, err := r.collection.Get(ctx, discountID)
	if err != nil {
		return domain.Discount{}, err
	}
	return entity.Data.toDomain(entity.ID), nil
}

// FindByCode resolves a discount by normalized code within a shop.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string, shopID string) (domain.Discount, error) {
	normalized := domain.NormalizeDiscountCode(code)
	if normalized == "" {
		return domain.Discount{}, errors.New("discount repository: code is required")
	}
	shop := strings.TrimSpace(shopID)
	if shop == "" {
		return domain.Discount{}, errors.New("discount repository: shop id is required")
	}

	entities, err := r.collection.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("shopId", "==", shop).
			Where("code", "==", normalized).
			Limit(1)
	})
	if err != nil {
		return domain.Discount{}, err
	}
	if len(entities) == 0 {
		return domain.Discount{}, pfirestore.NotFoundError("discounts.findbycode", errors.New("discount code not found"))
	}
	return entities[0].Data.toDomain(entities[0].ID), nil
}

// ListByShop returns the shop's discounts, newest first.
func (r *DiscountRepository) ListByShop(ctx context.Context, shopID string, filter repositories.DiscountListFilter) ([]domain.Discount, error) {
	shop := strings.TrimSpace(shopID)
	if shop == "" {
		return nil, errors.New("discount repository: shop id is required")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = discountDefaultListLimit
	}

	entities, err := r.collection.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("shopId", "==", shop)
		if filter.ActiveOnly {
			query = query.Where("active", "==", true)
		}
		return query.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	discounts := make([]domain.Discount, 0, len(entities))
	for _, entity := range entities {
		discounts = append(discounts, entity.Data.toDomain(entity.ID))
	}
	return discounts, nil
}

type discountDocument struct {
	ShopID         string    `firestore:"shopId"`
	Code           string    `firestore:"code"`
	Name           string    `firestore:"name"`
	Description    string    `firestore:"description"`
	Type           string    `firestore:"type"`
	Value          int64     `firestore:"value"`
	StartsAt       time.Time `firestore:"startsAt"`
	EndsAt         time.Time `firestore:"endsAt"`
	Active         bool      `firestore:"active"`
	MinOrderValue  *int64    `firestore:"minOrderValue"`
	MaxUses        *int      `firestore:"maxUses"`
	UsesCount      int       `firestore:"usesCount"`
	MaxUsesPerUser *int      `firestore:"maxUsesPerUser"`
	AppliesTo      string    `firestore:"appliesTo"`
	ProductIDs     []string  `firestore:"productIds"`
	UsersUsed      []string  `firestore:"usersUsed"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func encodeDiscount(discount domain.Discount) discountDocument {
	return discountDocument{
		ShopID:         discount.ShopID,
		Code:           discount.Code,
		Name:           discount.Name,
		Description:    discount.Description,
		Type:           string(discount.Type),
		Value:          discount.Value,
		StartsAt:       discount.StartsAt.UTC(),
		EndsAt:         discount.EndsAt.UTC(),
		Active:         discount.Active,
		MinOrderValue:  discount.MinOrderValue,
		MaxUses:        discount.MaxUses,
		UsesCount:      discount.UsesCount,
		MaxUsesPerUser: discount.MaxUsesPerUser,
		AppliesTo:      string(discount.AppliesTo),
		ProductIDs:     discount.ProductIDs,
		UsersUsed:      discount.UsersUsed,
		CreatedAt:      discount.CreatedAt.UTC(),
		UpdatedAt:      discount.UpdatedAt.UTC(),
	}
}

func (d discountDocument) toDomain(id string) domain.Discount {
	return domain.Discount{
		ID:             id,
		ShopID:         d.ShopID,
		Code:           d.Code,
		Name:           d.Name,
		Description:    d.Description,
		Type:           domain.DiscountType(d.Type),
		Value:          d.Value,
		StartsAt:       d.StartsAt,
		EndsAt:         d.EndsAt,
		Active:         d.Active,
		MinOrderValue:  d.MinOrderValue,
		MaxUses:        d.MaxUses,
		UsesCount:      d.UsesCount,
		MaxUsesPerUser: d.MaxUsesPerUser,
		AppliesTo:      domain.DiscountAppliesTo(d.AppliesTo),
		ProductIDs:     d.ProductIDs,
		UsersUsed:      d.UsersUsed,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ repositories.DiscountRepository = (*DiscountRepository)(nil)
