package reviews

import (
	"net/http"

	"github.com/threedeality/storefront-api/internal/common"
)

// Handler exposes the review feed.
type Handler struct {
	Svc *Service
}

// List handles GET /api/v1/reviews.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSON(w, http.StatusOK, assemble(fallbackReviews, "fallback"))
		return
	}
	common.JSON(w, http.StatusOK, h.Svc.Fetch(r.Context()))
}
