package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/config"
)

// Step names identify which backend call failed so the browser can show an
// accurate message instead of a generic failure.
const (
	StepInit             = "init"
	StepCreateCollection = "create-payment-collection"
	StepCreateSession    = "create-payment-session"
	StepSet              = "set"
	StepComplete         = "complete"
)

// ErrCartIDRequired is returned when the payload omits the cart identifier.
var ErrCartIDRequired = errors.New("cartId required")

// StepError reports a partial checkout failure: the failing step, the
// upstream status code and the upstream error body.
type StepError struct {
	Step   string
	Status int
	Body   []byte
	Err    error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout: step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("checkout: step %s: upstream status %d", e.Step, e.Status)
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// PayInput is the browser-supplied request: a cart id and an optional payment
// provider id.
type PayInput struct {
	CartID     string `json:"cartId"`
	ProviderID string `json:"providerId"`
}

// Result carries the backend's completion response for verbatim forwarding.
type Result struct {
	Status int
	Body   []byte
}

// Service drives the commerce backend through its payment-provisioning steps.
// The backend requires a strict multi-call sequence guarded by a server-held
// credential, so the browser can never run it directly.
type Service struct {
	Client            *commerce.Client
	Contract          config.Contract
	DefaultProviderID string
}

// Pay provisions payment for the cart and completes it, yielding the order.
// The backend contract generation is pinned via configuration rather than
// probed per request.
func (s *Service) Pay(ctx context.Context, in PayInput) (Result, error) {
	if s == nil || s.Client == nil || !s.Client.Ready() {
		return Result{}, commerce.ErrNotConfigured
	}
	cartID := strings.TrimSpace(in.CartID)
	if cartID == "" {
		return Result{}, ErrCartIDRequired
	}
	providerID := strings.TrimSpace(in.ProviderID)
	if providerID == "" {
		providerID = s.DefaultProviderID
	}
	if providerID == "" {
		providerID = "manual"
	}

	switch s.Contract {
	case config.ContractV2:
		if err := s.provisionV2(ctx, cartID, providerID); err != nil {
			return Result{}, err
		}
	default:
		if err := s.provisionV1(ctx, cartID, providerID); err != nil {
			return Result{}, err
		}
	}

	done, err := s.Client.CompleteCart(ctx, cartID)
	if err != nil {
		return Result{}, &StepError{Step: StepComplete, Err: err}
	}
	if !done.OK() {
		return Result{}, &StepError{Step: StepComplete, Status: done.Status, Body: done.Body}
	}
	return Result{Status: done.Status, Body: done.Body}, nil
}

// provisionV1 creates payment sessions directly on the cart and selects a
// provider, falling back to the PUT-style setter some releases expect.
func (s *Service) provisionV1(ctx context.Context, cartID, providerID string) error {
	created, err := s.Client.CreatePaymentSessions(ctx, cartID)
	if err != nil {
		return &StepError{Step: StepCreateSession, Err: err}
	}
	// 409 means the sessions already exist; the sequence proceeds.
	if !created.OK() && created.Status != 409 {
		return &StepError{Step: StepCreateSession, Status: created.Status, Body: created.Body}
	}

	selected, err := s.Client.SelectPaymentSession(ctx, cartID, providerID)
	if err != nil {
		return &StepError{Step: StepSet, Err: err}
	}
	if selected.OK() {
		return nil
	}
	fallback, err := s.Client.SetPaymentSession(ctx, cartID, providerID)
	if err != nil {
		return &StepError{Step: StepSet, Err: err}
	}
	if !fallback.OK() {
		return &StepError{Step: StepSet, Status: fallback.Status, Body: fallback.Body}
	}
	return nil
}

// provisionV2 ensures a payment collection exists for the cart, reusing one
// the cart already references, then scopes a payment session to it.
func (s *Service) provisionV2(ctx context.Context, cartID, providerID string) error {
	collectionID := s.existingCollection(ctx, cartID)
	if collectionID == "" {
		collection, resp, err := s.Client.CreatePaymentCollection(ctx, cartID)
		if err != nil {
			return &StepError{Step: StepCreateCollection, Err: err}
		}
		switch {
		case resp.OK():
			collectionID = collection.ID
		case resp.Status == 409:
			// Provisioned by a concurrent attempt; the cart references it now.
			collectionID = s.existingCollection(ctx, cartID)
		}
		if collectionID == "" {
			if resp.OK() || resp.Status == 409 {
				return &StepError{Step: StepCreateCollection, Err: errors.New("payment collection id missing from response")}
			}
			return &StepError{Step: StepCreateCollection, Status: resp.Status, Body: resp.Body}
		}
	}

	created, err := s.Client.CreateCollectionSession(ctx, collectionID, providerID)
	if err != nil {
		return &StepError{Step: StepCreateSession, Err: err}
	}
	if !created.OK() && created.Status != 409 {
		return &StepError{Step: StepCreateSession, Status: created.Status, Body: created.Body}
	}
	return nil
}

// existingCollection returns the id of a payment collection the cart already
// references. Errors are swallowed: "could not determine existing state" is
// treated as "no existing state" and the creation path takes over.
func (s *Service) existingCollection(ctx context.Context, cartID string) string {
	cart, err := s.Client.GetCart(ctx, cartID)
	if err != nil || cart.PaymentCollection == nil {
		return ""
	}
	return cart.PaymentCollection.ID
}
