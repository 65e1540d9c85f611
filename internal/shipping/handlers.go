package shipping

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
)

// Enqueuer is the slice of asynq.Client the handler needs. Satisfied by
// *asynq.Client.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// submitRequest is the storefront's payload after checkout completes.
type submitRequest struct {
	Order  json.RawMessage `json:"order"`
	Method string          `json:"method"`
	Paid   bool            `json:"paid"`
}

// ConfirmationQueuer queues the customer's order confirmation email once the
// shipment order is accepted.
type ConfirmationQueuer interface {
	QueueOrderConfirmation(order commerce.Order)
}

// Handler exposes the shipping order proxy. With Async set, accepted orders
// are queued for the worker instead of submitted inline.
type Handler struct {
	Svc    *Service
	Queue  Enqueuer
	Async  bool
	Notify ConfirmationQueuer
}

// SubmitOrder accepts {order, method?, paid?} and creates the shipment order
// on the platform. Gateway-paid orders are only submitted after capture.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		common.JSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSON(w, http.StatusBadRequest, map[string]any{"message": "invalid payload"})
		return
	}
	if len(req.Order) == 0 || string(req.Order) == "null" {
		common.JSON(w, http.StatusBadRequest, map[string]any{"message": "order required"})
		return
	}
	var order commerce.Order
	if err := json.Unmarshal(req.Order, &order); err != nil {
		common.JSON(w, http.StatusBadRequest, map[string]any{"message": "invalid order"})
		return
	}

	// Older storefront builds omit method; they are all cash-on-delivery.
	payMethod := strings.ToLower(strings.TrimSpace(req.Method))
	if payMethod == "" {
		payMethod = "cod"
	}
	// Gateway orders become Prepaid shipments only once payment is captured.
	if payMethod != "cod" && !req.Paid {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	method := MethodPrepaid
	if payMethod == "cod" {
		method = MethodCOD
	}

	if h.Async && h.Queue != nil {
		task, err := NewSubmitOrderTask(order, method)
		if err != nil {
			common.JSON(w, http.StatusInternalServerError, map[string]any{"message": "shipping-failed"})
			return
		}
		if _, err := h.Queue.Enqueue(task, asynq.MaxRetry(5)); err != nil {
			common.JSON(w, http.StatusInternalServerError, map[string]any{"message": "shipping-failed"})
			return
		}
		if h.Notify != nil {
			h.Notify.QueueOrderConfirmation(order)
		}
		common.JSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}

	resp, err := h.Svc.Submit(r.Context(), order, method)
	if err != nil {
		if errors.Is(err, ErrPlatformNotConfigured) {
			common.JSON(w, http.StatusInternalServerError, map[string]any{"message": "missing shipping platform configuration"})
			return
		}
		common.JSON(w, http.StatusBadGateway, map[string]any{"message": "shipping-failed"})
		return
	}
	if h.Notify != nil && resp.Status < 300 {
		h.Notify.QueueOrderConfirmation(order)
	}
	common.JSONRaw(w, resp.Status, resp.Body)
}
