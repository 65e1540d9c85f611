package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
)

// Handler exposes the session and cart endpoints.
type Handler struct {
	Svc      *Service
	Tokens   Tokens
	Validate *validator.Validate
}

// Start mints a new session token. The storefront calls this once and keeps
// the token for the lifetime of the browsing session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	token, sessionID, expiresAt, err := h.Tokens.Issue()
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not start session", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"session_id": sessionID,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

// GetCart returns the session's cart, creating one on first touch.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "SESSION_REQUIRED", "missing or invalid session token", nil)
		return
	}
	cart, err := h.Svc.Ensure(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

type addItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds a variant to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.AddItem(r.Context(), sessionID, req.VariantID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem changes a line item's quantity; zero or less removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	itemID := chi.URLParam(r, "itemID")
	var req updateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.UpdateItemQuantity(r.Context(), sessionID, itemID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	itemID := chi.URLParam(r, "itemID")
	cart, err := h.Svc.RemoveItem(r.Context(), sessionID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

type promoRequest struct {
	Code string `json:"code" validate:"required"`
}

// ApplyPromo attaches a promotion code to the cart.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	var req promoRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.ApplyPromoCode(r.Context(), sessionID, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

type addressRequest struct {
	Email   string           `json:"email" validate:"omitempty,email"`
	Address commerce.Address `json:"address" validate:"required"`
}

// SetAddress writes email and shipping address onto the cart.
func (h *Handler) SetAddress(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	var req addressRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.SetAddress(r.Context(), sessionID, req.Email, req.Address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

// ShippingOptions lists fulfillment options for the cart.
func (h *Handler) ShippingOptions(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	options, err := h.Svc.ShippingOptions(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"shipping_options": options})
}

type shippingMethodRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

// SelectShippingMethod selects a shipping option onto the cart.
func (h *Handler) SelectShippingMethod(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	var req shippingMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	cart, err := h.Svc.SelectShippingMethod(r.Context(), sessionID, req.OptionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

// ClearCart abandons the cart and binds a fresh one.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	cart, err := h.Svc.Clear(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeCart(w, cart)
}

// LocalItems returns the session's local quote cart.
func (h *Handler) LocalItems(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	items, err := h.Svc.LocalItems(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeLocalItems(w, items)
}

type addLocalItemRequest struct {
	Filename      string  `json:"filename" validate:"required"`
	Material      string  `json:"material" validate:"required"`
	InfillPercent int     `json:"infill_percent" validate:"gte=0,lte=100"`
	LayerHeight   float64 `json:"layer_height"`
	UnitPrice     int64   `json:"unit_price" validate:"gte=0"`
	Quantity      int     `json:"quantity"`
}

// AddLocalItem adds a priced quote to the local cart, coalescing repeats of
// the same file and material.
func (h *Handler) AddLocalItem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	var req addLocalItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	items, err := h.Svc.AddLocalItem(r.Context(), sessionID, QuoteItem{
		Filename:      req.Filename,
		Material:      req.Material,
		InfillPercent: req.InfillPercent,
		LayerHeight:   req.LayerHeight,
		UnitPrice:     req.UnitPrice,
		Quantity:      req.Quantity,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeLocalItems(w, items)
}

// RemoveLocalItem drops a quote line from the local cart.
func (h *Handler) RemoveLocalItem(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := common.SessionID(r.Context())
	itemID := chi.URLParam(r, "itemID")
	items, err := h.Svc.RemoveLocalItem(r.Context(), sessionID, itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeLocalItems(w, items)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return false
		}
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *commerce.APIError
	switch {
	case errors.Is(err, commerce.ErrNotConfigured):
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "missing commerce backend configuration", nil)
	case errors.Is(err, ErrItemNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "item not found", nil)
	case errors.As(err, &apiErr):
		// Backend rejections surface with their own status; the body is the
		// backend's error message.
		common.JSONRaw(w, apiErr.Status, apiErr.Body)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "commerce backend unavailable", nil)
	}
}

func writeCart(w http.ResponseWriter, cart commerce.Cart) {
	common.JSON(w, http.StatusOK, map[string]any{
		"cart":       cart,
		"item_count": cart.ItemCount(),
	})
}

func writeLocalItems(w http.ResponseWriter, items []QuoteItem) {
	if items == nil {
		items = []QuoteItem{}
	}
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"item_count": count,
	})
}
