package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
	"github.com/threedeality/storefront-api/internal/obs"
)

// Handler exposes the checkout payment proxy over HTTP.
type Handler struct {
	Svc *Service
}

// Pay accepts {cartId, providerId?} and relays the backend's completion
// response, or a step-tagged error when the sequence fails part way.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		return
	}
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	// An empty or malformed body falls through to the cartId check, which
	// yields the meaningful 400.
	var in PayInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		in = PayInput{}
	}
	result, err := h.Svc.Pay(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.count(StepComplete, "success")
	common.JSONRaw(w, result.Status, result.Body)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCartIDRequired):
		h.count(StepInit, "bad_request")
		common.JSON(w, http.StatusBadRequest, map[string]any{"message": "cartId required"})
	case errors.Is(err, commerce.ErrNotConfigured):
		h.count(StepInit, "misconfigured")
		common.JSON(w, http.StatusInternalServerError, map[string]any{"message": "missing commerce backend configuration"})
	default:
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			h.count(stepErr.Step, "upstream_error")
			body := map[string]any{"step": stepErr.Step}
			// Transport failures carry no upstream status; leave the key out
			// rather than reporting 0.
			if stepErr.Status != 0 {
				body["status"] = stepErr.Status
			}
			if stepErr.Err != nil {
				body["error"] = stepErr.Err.Error()
			} else {
				body["error"] = string(stepErr.Body)
			}
			common.JSON(w, http.StatusBadGateway, body)
			return
		}
		h.count(StepInit, "proxy_failed")
		common.JSON(w, http.StatusInternalServerError, map[string]any{"message": "proxy-failed", "error": err.Error()})
	}
}

func (h *Handler) count(step, result string) {
	if obs.CheckoutPayTotal == nil {
		return
	}
	contract := "v1"
	if h.Svc != nil {
		contract = string(h.Svc.Contract)
		if strings.TrimSpace(contract) == "" {
			contract = "v1"
		}
	}
	obs.CheckoutPayTotal.WithLabelValues(contract, step, result).Inc()
}
