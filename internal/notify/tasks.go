package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeSendEmail is the task type for deferred email delivery. Checkout and
// contact-form latency never includes the mail provider.
const TypeSendEmail = "email:send"

type sendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// NewSendEmailTask builds an asynq task for one message.
func NewSendEmailTask(to, subject, html string) (*asynq.Task, error) {
	payload, err := json.Marshal(sendEmailPayload{To: to, Subject: subject, HTML: html})
	if err != nil {
		return nil, fmt.Errorf("notify: encode email task: %w", err)
	}
	return asynq.NewTask(TypeSendEmail, payload), nil
}

// Worker handles email tasks on the worker process.
type Worker struct {
	Sender EmailSender
}

// HandleSendEmail delivers one queued message. A missing provider key is
// terminal; transport failures retry.
func (w *Worker) HandleSendEmail(ctx context.Context, task *asynq.Task) error {
	var payload sendEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode email task: %w: %w", err, asynq.SkipRetry)
	}
	if w.Sender == nil {
		return fmt.Errorf("notify: no sender: %w", asynq.SkipRetry)
	}
	err := w.Sender.Send(ctx, payload.To, payload.Subject, payload.HTML)
	if errors.Is(err, ErrSenderNotConfigured) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
