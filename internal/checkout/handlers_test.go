package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/config"
	"github.com/threedeality/storefront-api/internal/resilience"
)

func TestPayHandlerForwardsCompletionVerbatim(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/complete", http.StatusOK, `{"type":"order","order":{"id":"order_1","display_id":42}}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	h := &Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", strings.NewReader(`{"cartId":"cart_1"}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"type":"order","order":{"id":"order_1","display_id":42}}`, rec.Body.String())
}

func TestPayHandlerRejectsMissingCartID(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend, config.ContractV1)
	h := &Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, backend.callLog())
}

func TestPayHandlerMisconfiguredIs500BeforeNetwork(t *testing.T) {
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	h := &Handler{Svc: &Service{
		Client:   &commerce.Client{BaseURL: srv.URL, HTTP: resilience.HTTPClient{Client: srv.Client()}},
		Contract: config.ContractV1,
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", strings.NewReader(`{"cartId":"cart_1"}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, backend.callLog())
}

func TestPayHandlerStepFailureIs502(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusBadRequest, `{"message":"no such provider"}`)
	backend.set(http.MethodPut, "/store/carts/cart_1/payment-sessions", http.StatusBadRequest, `{"message":"no such provider"}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	h := &Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", strings.NewReader(`{"cartId":"cart_1","providerId":"bogus"}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Step   string `json:"step"`
		Status int    `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, StepSet, body.Step)
	require.Equal(t, http.StatusBadRequest, body.Status)
	require.Contains(t, body.Error, "no such provider")
}

func TestPayHandlerTransportFailureOmitsStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	h := &Handler{Svc: &Service{
		Client: &commerce.Client{
			BaseURL:        srv.URL,
			PublishableKey: "pk_test",
			HTTP:           resilience.HTTPClient{Client: &http.Client{}, MaxAttempts: 1},
		},
		Contract: config.ContractV1,
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", strings.NewReader(`{"cartId":"cart_1"}`))
	rec := httptest.NewRecorder()
	h.Pay(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, StepCreateSession, body["step"])
	require.NotContains(t, body, "status")
	require.NotEmpty(t, body["error"])
}

func TestPayHandlerMethodNotAllowed(t *testing.T) {
	h := &Handler{Svc: &Service{}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/pay", nil)
	rec := httptest.NewRecorder()
	h.Pay(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}
