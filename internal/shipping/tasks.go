package shipping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/threedeality/storefront-api/internal/commerce"
)

// TypeSubmitOrder is the task type for deferred shipping order submission.
const TypeSubmitOrder = "shipping:submit_order"

type submitOrderPayload struct {
	Order  commerce.Order `json:"order"`
	Method PaymentMethod  `json:"method"`
}

// NewSubmitOrderTask builds an asynq task carrying the order and payment
// method. The worker retries transient failures; platform rejections with a
// 4xx status are terminal.
func NewSubmitOrderTask(order commerce.Order, method PaymentMethod) (*asynq.Task, error) {
	payload, err := json.Marshal(submitOrderPayload{Order: order, Method: method})
	if err != nil {
		return nil, fmt.Errorf("shipping: encode submit task: %w", err)
	}
	return asynq.NewTask(TypeSubmitOrder, payload), nil
}

// HandleSubmitOrder is the worker-side handler for TypeSubmitOrder.
func (s *Service) HandleSubmitOrder(ctx context.Context, task *asynq.Task) error {
	var payload submitOrderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("shipping: decode submit task: %w: %w", err, asynq.SkipRetry)
	}
	resp, err := s.Submit(ctx, payload.Order, payload.Method)
	if err != nil {
		return err
	}
	if resp.OK() {
		return nil
	}
	if resp.Status >= 400 && resp.Status < 500 {
		// The platform rejected the payload itself; retrying cannot help.
		return fmt.Errorf("shipping: platform rejected order: status %d: %w", resp.Status, asynq.SkipRetry)
	}
	return fmt.Errorf("shipping: platform error: status %d", resp.Status)
}
