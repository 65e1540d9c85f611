package notify

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
)

// Enqueuer is the slice of asynq.Client the handlers need.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Handler queues transactional email for the worker.
type Handler struct {
	Queue    Enqueuer
	Inbox    string
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=20"`
	Message string `json:"message" validate:"required,max=5000"`
}

// Contact handles POST /api/v1/contact: validates the form and queues the
// shop-inbox notification.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
			return
		}
	}
	if h.Queue == nil || h.Inbox == "" {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "contact notifications not configured", nil)
		return
	}
	subject, body := ContactMessage(req.Name, req.Email, req.Phone, req.Message)
	task, err := NewSendEmailTask(h.Inbox, subject, body)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not queue message", nil)
		return
	}
	if _, err := h.Queue.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		h.Logger.Error().Err(err).Msg("contact email enqueue failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "could not queue message", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

// QueueOrderConfirmation enqueues an order confirmation for the buyer. A
// missing email or queue is a no-op; confirmation mail is best effort.
func (h *Handler) QueueOrderConfirmation(order commerce.Order) {
	if h == nil || h.Queue == nil || order.Email == "" {
		return
	}
	subject, body := OrderConfirmation(order)
	task, err := NewSendEmailTask(order.Email, subject, body)
	if err != nil {
		return
	}
	if _, err := h.Queue.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		h.Logger.Error().Err(err).Str("order_id", order.ID).Msg("order confirmation enqueue failed")
	}
}
