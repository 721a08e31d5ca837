package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplemarket/api/internal/domain"
	"github.com/maplemarket/api/internal/platform/auth"
	"github.com/maplemarket/api/internal/platform/httpx"
	"github.com/maplemarket/api/internal/platform/pagination"
	"github.com/maplemarket/api/internal/services"
)

const maxDiscountRequestBody = 32 * 1024

// DiscountHandlers exposes discount administration and preview endpoints.
type DiscountHandlers struct {
	authn       *auth.Authenticator
	discounts   services.DiscountService
	idempotency func(http.Handler) http.Handler
}

// DiscountHandlersOption customises handler construction.
type DiscountHandlersOption func(*DiscountHandlers)

// WithCreateIdempotency guards discount creation with the given middleware so
// retried requests replay the original response.
func WithCreateIdempotency(mw func(http.Handler) http.Handler) DiscountHandlersOption {
	return func(h *DiscountHandlers) {
		h.idempotency = mw
	}
}

// NewDiscountHandlers constructs discount handlers guarded by bearer authentication.
func NewDiscountHandlers(authn *auth.Authenticator, discounts services.DiscountService, opts ...DiscountHandlersOption) *DiscountHandlers {
	h := &DiscountHandlers{
		authn:     authn,
		discounts: discounts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers discount endpoints under the provided router.
func (h *DiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	seller := r
	user := r
	if h.authn != nil {
		seller = seller.With(h.authn.RequireAuth(auth.RoleSeller, auth.RoleAdmin))
		user = user.With(h.authn.RequireAuth())
	}

	create := seller
	if h.idempotency != nil {
		create = create.With(h.idempotency)
	}
	create.Post("/", h.createDiscount)
	seller.Patch("/{discountID}", h.updateDiscount)
	seller.Get("/", h.listDiscounts)

	user.Get("/{code}/products", h.listDiscountProducts)
	user.Post("/amount", h.previewAmount)
}

type discountPayload struct {
	ID             string   `json:"id"`
	ShopID         string   `json:"shop_id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Type           string   `json:"type"`
	Value          int64    `json:"value"`
	StartsAt       string   `json:"start_date"`
	EndsAt         string   `json:"end_date"`
	Active         bool     `json:"is_active"`
	MinOrderValue  *int64   `json:"min_order_value,omitempty"`
	MaxUses        *int     `json:"max_uses,omitempty"`
	UsesCount      int      `json:"uses_count"`
	MaxUsesPerUser *int     `json:"max_uses_per_user,omitempty"`
	AppliesTo      string   `json:"applies_to"`
	ProductIDs     []string `json:"product_ids,omitempty"`
}

type createDiscountRequest struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	Value          int64    `json:"value"`
	StartsAt       string   `json:"start_date"`
	EndsAt         string   `json:"end_date"`
	MinOrderValue  *int64   `json:"min_order_value"`
	MaxUses        *int     `json:"max_uses"`
	MaxUsesPerUser *int     `json:"max_uses_per_user"`
	AppliesTo      string   `json:"applies_to"`
	ProductIDs     []string `json:"product_ids"`
}

type updateDiscountRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Value          *int64   `json:"value"`
	StartsAt       *string  `json:"start_date"`
	EndsAt         *string  `json:"end_date"`
	Active         *bool    `json:"is_active"`
	MinOrderValue  *int64   `json:"min_order_value"`
	MaxUses        *int     `json:"max_uses"`
	MaxUsesPerUser *int     `json:"max_uses_per_user"`
	AppliesTo      *string  `json:"applies_to"`
	ProductIDs     []string `json:"product_ids"`
}

type previewAmountRequest struct {
	ShopID string             `json:"shop_id"`
	Code   string             `json:"code"`
	Items  []previewItemInput `json:"products"`
}

type previewItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type previewAmountResponse struct {
	TotalOrder int64 `json:"totalOrder"`
	Discount   int64 `json:"discount"`
	TotalPrice int64 `json:"totalPrice"`
}

type discountProductPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"product_name"`
	Price     int64  `json:"product_price"`
	Quantity  int    `json:"product_quantity"`
	ShopID    string `json:"product_shop"`
}

func (h *DiscountHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.sellerIdentity(ctx, w)
	if !ok {
		return
	}

	var req createDiscountRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	startsAt, ok := parseDiscountTime(ctx, w, req.StartsAt, "start_date")
	if !ok {
		return
	}
	endsAt, ok := parseDiscountTime(ctx, w, req.EndsAt, "end_date")
	if !ok {
		return
	}

	discount, err := h.discounts.CreateDiscount(ctx, services.CreateDiscountCommand{
		ShopID:         identity.ShopID,
		Code:           req.Code,
		Name:           req.Name,
		Description:    req.Description,
		Type:           domain.DiscountType(strings.TrimSpace(req.Type)),
		Value:          req.Value,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		MinOrderValue:  req.MinOrderValue,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		AppliesTo:      domain.DiscountAppliesTo(strings.TrimSpace(req.AppliesTo)),
		ProductIDs:     req.ProductIDs,
	})
	if err != nil {
		h.writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toDiscountPayload(discount))
}

func (h *DiscountHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.sellerIdentity(ctx, w)
	if !ok {
		return
	}

	discountID := strings.TrimSpace(chi.URLParam(r, "discountID"))
	if discountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "discount id is required", http.StatusBadRequest))
		return
	}

	var req updateDiscountRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cmd := services.UpdateDiscountCommand{
		DiscountID:     discountID,
		ShopID:         identity.ShopID,
		Name:           req.Name,
		Description:    req.Description,
		Value:          req.Value,
		Active:         req.Active,
		MinOrderValue:  req.MinOrderValue,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
		ProductIDs:     req.ProductIDs,
	}
	if req.StartsAt != nil {
		startsAt, ok := parseDiscountTime(ctx, w, *req.StartsAt, "start_date")
		if !ok {
			return
		}
		cmd.StartsAt = &startsAt
	}
	if req.EndsAt != nil {
		endsAt, ok := parseDiscountTime(ctx, w, *req.EndsAt, "end_date")
		if !ok {
			return
		}
		cmd.EndsAt = &endsAt
	}
	if req.AppliesTo != nil {
		appliesTo := domain.DiscountAppliesTo(strings.TrimSpace(*req.AppliesTo))
		cmd.AppliesTo = &appliesTo
	}

	discount, err := h.discounts.UpdateDiscount(ctx, cmd)
	if err != nil {
		h.writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toDiscountPayload(discount))
}

func (h *DiscountHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.sellerIdentity(ctx, w)
	if !ok {
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.DiscountListFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      page.PageSize,
	}

	discounts, err := h.discounts.ListShopDiscounts(ctx, identity.ShopID, filter)
	if err != nil {
		h.writeDiscountError(ctx, w, err)
		return
	}

	payload := make([]discountPayload, 0, len(discounts))
	for _, discount := range discounts {
		payload = append(payload, toDiscountPayload(discount))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"discounts": payload})
}

func (h *DiscountHandlers) listDiscountProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if code == "" || shopID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code and shop_id are required", http.StatusBadRequest))
		return
	}

	products, err := h.discounts.ListDiscountProducts(ctx, code, shopID)
	if err != nil {
		h.writeDiscountError(ctx, w, err)
		return
	}

	payload := make([]discountProductPayload, 0, len(products))
	for _, product := range products {
		payload = append(payload, discountProductPayload{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  product.Quantity,
			ShopID:    product.ShopID,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": payload})
}

func (h *DiscountHandlers) previewAmount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req previewAmountRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.PricedLine, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.PricedLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	quote, err := h.discounts.PreviewDiscountAmount(ctx, services.PreviewDiscountCommand{
		UserID: identity.UID,
		ShopID: strings.TrimSpace(req.ShopID),
		Code:   strings.TrimSpace(req.Code),
		Items:  items,
	})
	if err != nil {
		h.writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, previewAmountResponse{
		TotalOrder: quote.TotalOrder,
		Discount:   quote.Amount,
		TotalPrice: quote.FinalPrice,
	})
}

func (h *DiscountHandlers) sellerIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	if strings.TrimSpace(identity.ShopID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "seller shop is required", http.StatusForbidden))
		return nil, false
	}
	return identity, true
}

func (h *DiscountHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxDiscountRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *DiscountHandlers) writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountCodeExists):
		httpx.WriteError(ctx, w, httpx.NewError("discount_code_exists", "discount code already exists", http.StatusConflict))
	case errors.Is(err, services.ErrDiscountNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_eligible", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDiscountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("discounts_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "failed to process discount request", http.StatusInternalServerError))
	}
}

func parseDiscountTime(ctx context.Context, w http.ResponseWriter, value string, field string) (time.Time, bool) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", field+" must be an RFC3339 timestamp", http.StatusBadRequest))
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

func toDiscountPayload(discount domain.Discount) discountPayload {
	return discountPayload{
		ID:             discount.ID,
		ShopID:         discount.ShopID,
		Code:           discount.Code,
		Name:           discount.Name,
		Description:    discount.Description,
		Type:           string(discount.Type),
		Value:          discount.Value,
		StartsAt:       discount.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:         discount.EndsAt.UTC().Format(time.RFC3339),
		Active:         discount.Active,
		MinOrderValue:  discount.MinOrderValue,
		MaxUses:        discount.MaxUses,
		UsesCount:      discount.UsesCount,
		MaxUsesPerUser: discount.MaxUsesPerUser,
		AppliesTo:      string(discount.AppliesTo),
		ProductIDs:     discount.ProductIDs,
	}
}
