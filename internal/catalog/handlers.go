package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	Svc *Service
}

// Products handles GET /api/v1/products with pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	limit := queryInt(r, "limit")
	offset := queryInt(r, "offset")
	result, err := h.Svc.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.Count))
	common.JSON(w, http.StatusOK, result)
}

// ProductDetail handles GET /api/v1/products/{productID}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	productID := chi.URLParam(r, "productID")
	product, err := h.Svc.Get(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *commerce.APIError
	switch {
	case errors.Is(err, commerce.ErrNotConfigured):
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "missing commerce backend configuration", nil)
	case errors.As(err, &apiErr):
		common.JSONRaw(w, apiErr.Status, apiErr.Body)
	default:
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "commerce backend unavailable", nil)
	}
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
