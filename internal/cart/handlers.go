package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calvindo/checkout-pricing/internal/catalog"
	"github.com/calvindo/checkout-pricing/internal/common"
	"github.com/calvindo/checkout-pricing/internal/discount"
	"github.com/calvindo/checkout-pricing/internal/pricing"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Currency string
}

func (h *Handler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

// Create creates or returns the cart for an anonymous id.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		AnonID  string `json:"anonId"`
		Country string `json:"country"`
		Region  string `json:"region"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	anonID := strings.TrimSpace(payload.AnonID)
	if anonID == "" {
		anonID = uuid.NewString()
	}
	c, err := h.Svc.EnsureCart(r.Context(), anonID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Country != "" {
		if err := h.Svc.SetRegion(r.Context(), c.ID, payload.Country, payload.Region); err != nil {
			h.writeError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"cartId": c.ID,
			"anonId": c.AnonID,
		},
	})
}

// Get returns the cart contents with the full pricing breakdown.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.GetCart(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, items, err := h.Svc.Quote(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	responseItems := make([]map[string]any, 0, len(items))
	for i, it := range items {
		entry := map[string]any{
			"id":        it.ID,
			"productId": it.ProductID,
			"title":     it.Title,
			"qty":       it.Qty,
			"unitPrice": it.UnitPrice,
		}
		if it.VariantID != nil {
			entry["variantId"] = *it.VariantID
		}
		if i < len(summary.Items) {
			res := summary.Items[i]
			entry["subtotal"] = res.Subtotal
			entry["itemPrice"] = res.ItemPrice
			entry["discount"] = res.DiscountAmount
			entry["tax"] = res.TaxAmount
			entry["total"] = res.FinalPrice
		}
		responseItems = append(responseItems, entry)
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"id":        c.ID,
			"anonId":    c.AnonID,
			"country":   c.Country,
			"region":    c.Region,
			"discounts": c.DiscountCodes,
			"items":     responseItems,
			"pricing": map[string]any{
				"subtotal":   summary.Subtotal,
				"discount":   summary.DiscountTotal,
				"tax":        summary.TaxTotal,
				"fees":       summary.FeeTotal,
				"grandTotal": summary.GrandTotal,
			},
			"currency": h.Currency,
		},
	})
}

// Update changes the cart's tax jurisdiction.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Country string `json:"country" validate:"required,len=2"`
		Region  string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
		return
	}
	if err := h.Svc.SetRegion(r.Context(), cartID, payload.Country, payload.Region); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"updated": true}})
}

// AddItem adds a product (optionally a specific price variant) to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ProductID string  `json:"productId" validate:"required,uuid4"`
		VariantID *string `json:"variantId" validate:"omitempty,uuid4"`
		Qty       int     `json:"qty" validate:"required,gte=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	var variantID *uuid.UUID
	if payload.VariantID != nil && *payload.VariantID != "" {
		vid, err := uuid.Parse(*payload.VariantID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
			return
		}
		variantID = &vid
	}
	item, err := h.Svc.AddItem(r.Context(), cartID, productID, variantID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"itemId":    item.ID,
			"qty":       item.Qty,
			"unitPrice": item.UnitPrice,
		},
	})
}

// UpdateItem changes a line item's quantity.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	var payload struct {
		Qty int `json:"qty" validate:"required,gte=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), cartID, itemID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"updated": true}})
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), cartID, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Empty removes every line item and fee.
func (h *Handler) Empty(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Empty(r.Context(), cartID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddFee attaches a fee to the cart.
func (h *Handler) AddFee(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		ID        string  `json:"id" validate:"required"`
		Label     string  `json:"label"`
		Amount    string  `json:"amount" validate:"required"`
		Scope     string  `json:"scope" validate:"required,oneof=global item item_specific"`
		ProductID *string `json:"productId" validate:"omitempty,uuid4"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
		return
	}
	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid fee amount", nil)
		return
	}
	fee := pricing.Fee{
		ID:     payload.ID,
		Label:  payload.Label,
		Amount: amount,
		Scope:  pricing.FeeScope(payload.Scope),
	}
	if payload.ProductID != nil && *payload.ProductID != "" {
		pid, err := uuid.Parse(*payload.ProductID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
			return
		}
		fee.ProductID = &pid
	}
	if err := h.Svc.AddFee(r.Context(), cartID, fee); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{"feeId": fee.ID}})
}

// RemoveFee deletes a fee by id.
func (h *Handler) RemoveFee(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveFee(r.Context(), cartID, chi.URLParam(r, "feeID")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyDiscount validates and attaches a discount code.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", err.Error())
		return
	}
	c, err := h.Svc.ApplyDiscount(r.Context(), cartID, payload.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"discounts": c.DiscountCodes}})
}

// RemoveDiscount removes a code in any casing.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveDiscount(r.Context(), cartID, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"discounts": c.DiscountCodes}})
}

func (h *Handler) cartID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "cart item not found", nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, catalog.ErrVariantMismatch):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "variant does not belong to product", nil)
	case errors.Is(err, discount.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "DISCOUNT_NOT_FOUND", "discount not found", nil)
	case errors.Is(err, discount.ErrInactive),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrUsageLimitReached),
		errors.Is(err, discount.ErrMinSubtotalUnmet),
		errors.Is(err, discount.ErrNotApplicable):
		common.JSONError(w, http.StatusUnprocessableEntity, "DISCOUNT_NOT_ELIGIBLE", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}
