package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplemarket/api/internal/domain"
	"github.com/maplemarket/api/internal/repositories"
)

// Eligibility reasons surfaced in DiscountValidation results.
const (
	reasonDiscountNotFound   = "discount not found"
	reasonDiscountInactive   = "discount is inactive"
	reasonDiscountNotStarted = "discount has not started"
	reasonDiscountExpired    = "discount has expired"
	reasonDiscountExhausted  = "discount usage limit reached"
	reasonOrderBelowMinimum  = "order total below minimum order value"
	reasonUserLimitReached   = "per-user usage limit reached"
)

// DiscountServiceDeps bundles dependencies required to construct a DiscountService.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	Products  repositories.ProductRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type discountService struct {
	discounts repositories.DiscountRepository
	products  repositories.ProductRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewDiscountService wires a DiscountService validating required dependencies.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: discount repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("discount service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &discountService{
		discounts: deps.Discounts,
		products:  deps.Products,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// ValidateDiscount runs the ordered eligibility checks for one shop order,
// short-circuiting on the first failing rule. Ineligibility is a normal
// outcome carried in the result; only infrastructure failures return an error.
func (s *discountService) ValidateDiscount(ctx context.Context, cmd ValidateDiscountCommand) (DiscountValidation, error) {
	code := domain.NormalizeDiscountCode(cmd.Code)
	shopID := strings.TrimSpace(cmd.ShopID)
	if code == "" || shopID == "" {
		return DiscountValidation{}, ErrDiscountInvalidInput
	}

	discount, err := s.discounts.FindByCode(ctx, code, shopID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return DiscountValidation{Reason: reasonDiscountNotFound}, nil
		}
		return DiscountValidation{}, s.translateRepoError(err)
	}

	now := s.now()
	switch {
	case !discount.Active:
		return DiscountValidation{Reason: reasonDiscountInactive}, nil
	case !discount.StartsAt.IsZero() && now.Before(discount.StartsAt):
		return DiscountValidation{Reason: reasonDiscountNotStarted}, nil
	case !discount.EndsAt.IsZero() && now.After(discount.EndsAt):
		return DiscountValidation{Reason: reasonDiscountExpired}, nil
	}

	// Read-only remaining-uses check; the paired increment happens at order
	// commit time and is not serialized with this read.
	if discount.MaxUses != nil && discount.RemainingUses() <= 0 {
		return DiscountValidation{Reason: reasonDiscountExhausted}, nil
	}
	if discount.MinOrderValue != nil && cmd.OrderAmount < *discount.MinOrderValue {
		return DiscountValidation{Reason: reasonOrderBelowMinimum}, nil
	}
	if discount.MaxUsesPerUser != nil && discount.UserUsageCount(strings.TrimSpace(cmd.UserID)) >= *discount.MaxUsesPerUser {
		return DiscountValidation{Reason: reasonUserLimitReached}, nil
	}

	return DiscountValidation{Eligible: true, Discount: &discount}, nil
}

// ApplyDiscount recomputes the order total from server-resolved lines and
// clamps the discount so the final price can never go negative.
func (s *discountService) ApplyDiscount(discount Discount, lines []PricedLine) DiscountQuote {
	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		total += line.UnitPrice * int64(line.Quantity)
	}

	var raw int64
	switch discount.Type {
	case domain.DiscountTypeFixedAmount:
		raw = discount.Value
	case domain.DiscountTypePercent:
		raw = total * discount.Value / 100
	}

	amount := raw
	if amount < 0 {
		amount = 0
	}
	if amount > total {
		amount = total
	}

	return DiscountQuote{
		TotalOrder: total,
		Amount:     amount,
		FinalPrice: total - amount,
	}
}

// CreateDiscount persists a new shop-scoped discount after structural and
// uniqueness checks.
func (s *discountService) CreateDiscount(ctx context.Context, cmd CreateDiscountCommand) (Discount, error) {
	shopID := strings.TrimSpace(cmd.ShopID)
	code := domain.NormalizeDiscountCode(cmd.Code)
	if shopID == "" || code == "" {
		return Discount{}, ErrDiscountInvalidInput
	}
	if err := validateDiscountDefinition(cmd.Type, cmd.Value, cmd.AppliesTo, cmd.ProductIDs); err != nil {
		return Discount{}, err
	}

	now := s.now()
	startsAt := cmd.StartsAt.UTC()
	endsAt := cmd.EndsAt.UTC()
	if startsAt.IsZero() || endsAt.IsZero() || !startsAt.Before(endsAt) {
		return Discount{}, fmt.Errorf("%w: start date must precede end date", ErrDiscountInvalidInput)
	}
	if endsAt.Before(now) {
		return Discount{}, fmt.Errorf("%w: discount is already expired", ErrDiscountInvalidInput)
	}
	if cmd.MinOrderValue != nil && *cmd.MinOrderValue < 0 {
		return Discount{}, fmt.Errorf("%w: min order value must not be negative", ErrDiscountInvalidInput)
	}
	if cmd.MaxUses != nil && *cmd.MaxUses <= 0 {
		return Discount{}, fmt.Errorf("%w: max uses must be positive", ErrDiscountInvalidInput)
	}
	if cmd.MaxUsesPerUser != nil && *cmd.MaxUsesPerUser <= 0 {
		return Discount{}, fmt.Errorf("%w: max uses per user must be positive", ErrDiscountInvalidInput)
	}

	if _, err := s.discounts.FindByCode(ctx, code, shopID); err == nil {
		return Discount{}, ErrDiscountCodeExists
	} else if translated := s.ignoreNotFound(err); translated != nil {
		return Discount{}, translated
	}

	discount := domain.Discount{
		ID:             discountDocumentID(shopID, code),
		ShopID:         shopID,
		Code:           code,
		Name:           strings.TrimSpace(cmd.Name),
		Description:    strings.TrimSpace(cmd.Description),
		Type:           cmd.Type,
		Value:          cmd.Value,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Active:         true,
		MinOrderValue:  cmd.MinOrderValue,
		MaxUses:        cmd.MaxUses,
		MaxUsesPerUser: cmd.MaxUsesPerUser,
		AppliesTo:      cmd.AppliesTo,
		ProductIDs:     trimStrings(cmd.ProductIDs),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	created, err := s.discounts.Create(ctx, discount)
	if err != nil {
		return Discount{}, s.translateRepoError(err)
	}
	return created, nil
}

// UpdateDiscount applies a partial update to a discount owned by the shop.
func (s *discountService) UpdateDiscount(ctx context.Context, cmd UpdateDiscountCommand) (Discount, error) {
	discountID := strings.TrimSpace(cmd.DiscountID)
	shopID := strings.TrimSpace(cmd.ShopID)
	if discountID == "" || shopID == "" {
		return Discount{}, ErrDiscountInvalidInput
	}

	discount, err := s.discounts.FindByID(ctx, discountID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Discount{}, ErrDiscountNotFound
		}
		return Discount{}, s.translateRepoError(err)
	}
	// Shop scoping doubles as an ownership check; a foreign discount is
	// indistinguishable from a missing one.
	if discount.ShopID != shopID {
		return Discount{}, ErrDiscountNotFound
	}

	if cmd.Name != nil {
		discount.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Description != nil {
		discount.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Value != nil {
		discount.Value = *cmd.Value
	}
	if cmd.StartsAt != nil {
		discount.StartsAt = cmd.StartsAt.UTC()
	}
	if cmd.EndsAt != nil {
		discount.EndsAt = cmd.EndsAt.UTC()
	}
	if cmd.Active != nil {
		discount.Active = *cmd.Active
	}
	if cmd.MinOrderValue != nil {
		discount.MinOrderValue = cmd.MinOrderValue
	}
	if cmd.MaxUses != nil {
		discount.MaxUses = cmd.MaxUses
	}
	if cmd.MaxUsesPerUser != nil {
		discount.MaxUsesPerUser = cmd.MaxUsesPerUser
	}
	if cmd.AppliesTo != nil {
		discount.AppliesTo = *cmd.AppliesTo
	}
	if cmd.ProductIDs != nil {
		discount.ProductIDs = trimStrings(cmd.ProductIDs)
	}

	if err := validateDiscountDefinition(discount.Type, discount.Value, discount.AppliesTo, discount.ProductIDs); err != nil {
		return Discount{}, err
	}
	if !discount.StartsAt.Before(discount.EndsAt) {
		return Discount{}, fmt.Errorf("%w: start date must precede end date", ErrDiscountInvalidInput)
	}
	discount.UpdatedAt = s.now()

	updated, err := s.discounts.Update(ctx, discount)
	if err != nil {
		return Discount{}, s.translateRepoError(err)
	}
	return updated, nil
}

// ListShopDiscounts returns the shop's discount definitions.
func (s *discountService) ListShopDiscounts(ctx context.Context, shopID string, filter DiscountListFilter) ([]Discount, error) {
	shop := strings.TrimSpace(shopID)
	if shop == "" {
		return nil, ErrDiscountInvalidInput
	}
	discounts, err := s.discounts.ListByShop(ctx, shop, repositories.DiscountListFilter{
		ActiveOnly: filter.ActiveOnly,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return discounts, nil
}

// ListDiscountProducts returns the published products a code applies to.
func (s *discountService) ListDiscountProducts(ctx context.Context, code string, shopID string) ([]Product, error) {
	normalized := domain.NormalizeDiscountCode(code)
	shop := strings.TrimSpace(shopID)
	if normalized == "" || shop == "" {
		return nil, ErrDiscountInvalidInput
	}

	discount, err := s.discounts.FindByCode(ctx, normalized, shop)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, ErrDiscountNotFound
		}
		return nil, s.translateRepoError(err)
	}

	switch discount.AppliesTo {
	case domain.DiscountAppliesToSpecific:
		products, err := s.products.FindByIDs(ctx, discount.ProductIDs)
		if err != nil {
			return nil, s.translateRepoError(err)
		}
		published := make([]Product, 0, len(products))
		for _, product := range products {
			if product.Published {
				published = append(published, product)
			}
		}
		return published, nil
	default:
		products, err := s.products.ListByShop(ctx, discount.ShopID, true)
		if err != nil {
			return nil, s.translateRepoError(err)
		}
		return products, nil
	}
}

// PreviewDiscountAmount composes validation and application for a single shop
// order without consuming any usage.
func (s *discountService) PreviewDiscountAmount(ctx context.Context, cmd PreviewDiscountCommand) (DiscountQuote, error) {
	if len(cmd.Items) == 0 {
		return DiscountQuote{}, ErrDiscountInvalidInput
	}

	var orderAmount int64
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.UnitPrice < 0 {
			return DiscountQuote{}, ErrDiscountInvalidInput
		}
		orderAmount += item.UnitPrice * int64(item.Quantity)
	}

	validation, err := s.ValidateDiscount(ctx, ValidateDiscountCommand{
		Code:        cmd.Code,
		ShopID:      cmd.ShopID,
		UserID:      cmd.UserID,
		OrderAmount: orderAmount,
	})
	if err != nil {
		return DiscountQuote{}, err
	}
	if !validation.Eligible || validation.Discount == nil {
		if validation.Reason == reasonDiscountNotFound {
			return DiscountQuote{}, ErrDiscountNotFound
		}
		return DiscountQuote{}, fmt.Errorf("%w: %s", ErrDiscountNotEligible, validation.Reason)
	}

	return s.ApplyDiscount(*validation.Discount, cmd.Items), nil
}

func (s *discountService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDiscountNotFound
		case repoErr.IsConflict():
			return ErrDiscountCodeExists
		case repoErr.IsUnavailable():
			return ErrDiscountUnavailable
		}
	}
	return err
}

// ignoreNotFound translates every repository error except not-found, which the
// caller treats as the success path of a uniqueness probe.
func (s *discountService) ignoreNotFound(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return nil
	}
	return s.translateRepoError(err)
}

func validateDiscountDefinition(discountType domain.DiscountType, value int64, appliesTo domain.DiscountAppliesTo, productIDs []string) error {
	switch discountType {
	case domain.DiscountTypeFixedAmount, domain.DiscountTypePercent:
	default:
		return fmt.Errorf("%w: unsupported discount type %q", ErrDiscountInvalidInput, discountType)
	}
	if value <= 0 {
		return fmt.Errorf("%w: value must be positive", ErrDiscountInvalidInput)
	}
	if discountType == domain.DiscountTypePercent && value > 100 {
		return fmt.Errorf("%w: percent value must not exceed 100", ErrDiscountInvalidInput)
	}
	switch appliesTo {
	case domain.DiscountAppliesToAll:
	case domain.DiscountAppliesToSpecific:
		if len(trimStrings(productIDs)) == 0 {
			return fmt.Errorf("%w: specific discounts require product ids", ErrDiscountInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unsupported applies_to %q", ErrDiscountInvalidInput, appliesTo)
	}
	return nil
}

// discountDocumentID derives a deterministic document ID so that concurrent
// creates of the same (shop, code) pair collapse onto one document.
func discountDocumentID(shopID string, code string) string {
	return shopID + ":" + code
}

func trimStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
