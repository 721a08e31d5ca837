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
	"github.com/maplemarket/api/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers exposes checkout review endpoints for authenticated users.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/review", h.reviewCheckout)
}

type checkoutReviewRequest struct {
	CartID string             `json:"cartId"`
	Orders []shopOrderPayload `json:"shop_order_ids"`
}

type shopOrderPayload struct {
	ShopID    string                `json:"shop_id"`
	Items     []orderItemPayload    `json:"item_products"`
	Discounts []shopDiscountPayload `json:"shop_discounts"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type shopDiscountPayload struct {
	DiscountID string `json:"discountId"`
	Code       string `json:"discountcode"`
}

type checkoutReviewResponse struct {
	ShopOrders []shopOrderLine       `json:"shop_order_ids"`
	Order      checkoutOrderPayload  `json:"checkout_order"`
	Metadata   reviewMetadataPayload `json:"metadata"`
}

type shopOrderLine struct {
	ShopID             string                `json:"shop_id"`
	PriceRaw           int64                 `json:"priceRaw"`
	PriceApplyDiscount int64                 `json:"priceApplyDiscount"`
	DiscountAmount     int64                 `json:"discountAmount"`
	DiscountDetails    []discountDetail      `json:"discountDetails"`
	Items              []checkoutItemPayload `json:"item_products"`
	Metadata           lineMetadataPayload   `json:"metadata"`
}

type discountDetail struct {
	Code          string `json:"discount_code"`
	Amount        int64  `json:"discount_amount"`
	Type          string `json:"discount_type"`
	OriginalOrder int64  `json:"original_order"`
	FinalPrice    int64  `json:"final_price"`
}

type checkoutItemPayload struct {
	ProductID      string `json:"productId"`
	ProductName    string `json:"product_name"`
	ProductPrice   int64  `json:"product_price"`
	Quantity       int    `json:"quantity"`
	Subtotal       int64  `json:"subtotal"`
	RemainingStock int    `json:"remaining_stock"`
}

type lineMetadataPayload struct {
	HasDiscount        bool   `json:"hasDiscount"`
	DiscountPercentage string `json:"discountPercentage"`
	OriginalPrice      int64  `json:"originalPrice"`
	FinalPrice         int64  `json:"finalPrice"`
}

type checkoutOrderPayload struct {
	TotalPrice    int64 `json:"totalPrice"`
	FeeShip       int64 `json:"feeShip"`
	TotalDiscount int64 `json:"totalDiscount"`
	TotalCheckout int64 `json:"totalCheckout"`
}

type reviewMetadataPayload struct {
	ReviewID    string `json:"reviewId"`
	TotalShops  int    `json:"totalShops"`
	TotalItems  int    `json:"totalItems"`
	ProcessedAt string `json:"processedAt"`
	UserID      string `json:"userId"`
	CartID      string `json:"cartId"`
}

func (h *CheckoutHandlers) reviewCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" || len(req.Orders) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cartId and shop_order_ids are required", http.StatusBadRequest))
		return
	}

	cmd := services.ReviewCheckoutCommand{
		UserID: identity.UID,
		CartID: cartID,
		Groups: toShopOrderGroups(req.Orders),
	}

	summary, err := h.checkout.ReviewCheckout(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toReviewResponse(summary))
}

func toShopOrderGroups(payload []shopOrderPayload) []domain.ShopOrderGroup {
	groups := make([]domain.ShopOrderGroup, 0, len(payload))
	for _, order := range payload {
		items := make([]domain.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, domain.OrderItem{
				ProductID: strings.TrimSpace(item.ProductID),
				Quantity:  item.Quantity,
			})
		}
		discounts := make([]domain.DiscountRef, 0, len(order.Discounts))
		for _, ref := range order.Discounts {
			discounts = append(discounts, domain.DiscountRef{
				DiscountID: strings.TrimSpace(ref.DiscountID),
				Code:       strings.TrimSpace(ref.Code),
			})
		}
		groups = append(groups, domain.ShopOrderGroup{
			ShopID:    strings.TrimSpace(order.ShopID),
			Items:     items,
			Discounts: discounts,
		})
	}
	return groups
}

func toReviewResponse(summary domain.CheckoutSummary) checkoutReviewResponse {
	lines := make([]shopOrderLine, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		details := make([]discountDetail, 0, len(line.DiscountDetails))
		for _, d := range line.DiscountDetails {
			details = append(details, discountDetail{
				Code:          d.Code,
				Amount:        d.Amount,
				Type:          string(d.Type),
				OriginalOrder: d.OriginalOrder,
				FinalPrice:    d.FinalPrice,
			})
		}
		items := make([]checkoutItemPayload, 0, len(line.Items))
		for _, item := range line.Items {
			items = append(items, checkoutItemPayload{
				ProductID:      item.ProductID,
				ProductName:    item.ProductName,
				ProductPrice:   item.ProductPrice,
				Quantity:       item.Quantity,
				Subtotal:       item.Subtotal,
				RemainingStock: item.RemainingStock,
			})
		}
		lines = append(lines, shopOrderLine{
			ShopID:             line.ShopID,
			PriceRaw:           line.PriceRaw,
			PriceApplyDiscount: line.PriceApplyDiscount,
			DiscountAmount:     line.DiscountAmount,
			DiscountDetails:    details,
			Items:              items,
			Metadata: lineMetadataPayload{
				HasDiscount:        line.Metadata.HasDiscount,
				DiscountPercentage: line.Metadata.DiscountPercentage,
				OriginalPrice:      line.Metadata.OriginalPrice,
				FinalPrice:         line.Metadata.FinalPrice,
			},
		})
	}

	return checkoutReviewResponse{
		ShopOrders: lines,
		Order: checkoutOrderPayload{
			TotalPrice:    summary.Totals.Price,
			FeeShip:       summary.Totals.ShippingFee,
			TotalDiscount: summary.Totals.Discount,
			TotalCheckout: summary.Totals.Checkout,
		},
		Metadata: reviewMetadataPayload{
			ReviewID:    summary.Metadata.ReviewID,
			TotalShops:  summary.Metadata.TotalShops,
			TotalItems:  summary.Metadata.TotalItems,
			ProcessedAt: summary.Metadata.ProcessedAt.UTC().Format(time.RFC3339Nano),
			UserID:      summary.Metadata.UserID,
			CartID:      summary.Metadata.CartID,
		},
	}
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutBadRequest):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_rejected", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
