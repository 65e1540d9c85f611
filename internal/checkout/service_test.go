package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/config"
	"github.com/threedeality/storefront-api/internal/resilience"
)

// fakeBackend is a scriptable commerce backend: each route maps to a status
// and body, and every hit is recorded in order.
type fakeBackend struct {
	mu     sync.Mutex
	routes map[string]fakeRoute
	calls  []string
}

type fakeRoute struct {
	status int
	body   string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{routes: map[string]fakeRoute{}}
}

func (f *fakeBackend) set(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fakeRoute{status: status, body: body}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls = append(f.calls, key)
	route, ok := f.routes[key]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"message":"not scripted"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(route.status)
	_, _ = w.Write([]byte(route.body))
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestService(t *testing.T, backend *fakeBackend, contract config.Contract) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client := &commerce.Client{
		BaseURL:        srv.URL,
		PublishableKey: "pk_test",
		HTTP:           resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
	}
	return &Service{Client: client, Contract: contract, DefaultProviderID: "manual"}, srv
}

func TestPayV1HappyPath(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{"cart":{"id":"cart_1"}}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusOK, `{"cart":{"id":"cart_1"}}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/complete", http.StatusOK, `{"type":"order","order":{"id":"order_1"}}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	result, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, result.Status)
	require.JSONEq(t, `{"type":"order","order":{"id":"order_1"}}`, string(result.Body))

	require.Equal(t, []string{
		"POST /store/carts/cart_1/payment-sessions",
		"POST /store/carts/cart_1/payment-session",
		"POST /store/carts/cart_1/complete",
	}, backend.callLog())
}

func TestPayV1ToleratesExistingSessions(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusConflict, `{"message":"sessions already exist"}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusOK, `{"cart":{"id":"cart_1"}}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/complete", http.StatusOK, `{"type":"order"}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	result, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, result.Status)
}

func TestPayV1FallsBackToSetter(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusNotFound, `{"message":"unknown route"}`)
	backend.set(http.MethodPut, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{"cart":{"id":"cart_1"}}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/complete", http.StatusOK, `{"type":"order"}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	require.NoError(t, err)

	require.Contains(t, backend.callLog(), "PUT /store/carts/cart_1/payment-sessions")
}

func TestPayV1TagsFailingStep(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusBadRequest, `{"message":"no such provider"}`)
	backend.set(http.MethodPut, "/store/carts/cart_1/payment-sessions", http.StatusBadRequest, `{"message":"no such provider"}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1", ProviderID: "bogus"})
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepSet, stepErr.Step)
	require.Equal(t, http.StatusBadRequest, stepErr.Status)
	require.NotContains(t, backend.callLog(), "POST /store/carts/cart_1/complete")
}

func TestPayCompleteFailureIsTagged(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/payment-session", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_1/complete", http.StatusBadRequest, `{"message":"cart has no shipping method"}`)

	svc, _ := newTestService(t, backend, config.ContractV1)
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, StepComplete, stepErr.Step)
	require.Equal(t, http.StatusBadRequest, stepErr.Status)
	require.Contains(t, string(stepErr.Body), "no shipping method")
}

func TestPayV2HappyPath(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodGet, "/store/carts/cart_2", http.StatusOK, `{"cart":{"id":"cart_2"}}`)
	backend.set(http.MethodPost, "/store/payment-collections", http.StatusOK, `{"payment_collection":{"id":"paycol_1"}}`)
	backend.set(http.MethodPost, "/store/payment-collections/paycol_1/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_2/complete", http.StatusOK, `{"type":"order","order":{"id":"order_2"}}`)

	svc, _ := newTestService(t, backend, config.ContractV2)
	result, err := svc.Pay(context.Background(), PayInput{CartID: "cart_2"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, result.Status)

	require.Equal(t, []string{
		"GET /store/carts/cart_2",
		"POST /store/payment-collections",
		"POST /store/payment-collections/paycol_1/payment-sessions",
		"POST /store/carts/cart_2/complete",
	}, backend.callLog())
}

func TestPayV2ReusesExistingCollection(t *testing.T) {
	backend := newFakeBackend()
	backend.set(http.MethodGet, "/store/carts/cart_2", http.StatusOK, `{"cart":{"id":"cart_2","payment_collection":{"id":"paycol_9"}}}`)
	backend.set(http.MethodPost, "/store/payment-collections/paycol_9/payment-sessions", http.StatusOK, `{}`)
	backend.set(http.MethodPost, "/store/carts/cart_2/complete", http.StatusOK, `{"type":"order"}`)

	svc, _ := newTestService(t, backend, config.ContractV2)
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_2"})
	require.NoError(t, err)
	require.NotContains(t, backend.callLog(), "POST /store/payment-collections")
}

func TestPayV2ConflictRefetchesCollection(t *testing.T) {
	// First cart fetch sees no collection; the create races and conflicts;
	// the refetch finds the concurrently provisioned collection.
	var fetches int
	mux := http.NewServeMux()
	mux.HandleFunc("GET /store/carts/cart_2", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		if fetches == 1 {
			_, _ = w.Write([]byte(`{"cart":{"id":"cart_2"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"cart":{"id":"cart_2","payment_collection":{"id":"paycol_7"}}}`))
	})
	mux.HandleFunc("POST /store/payment-collections", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"collection exists"}`, http.StatusConflict)
	})
	mux.HandleFunc("POST /store/payment-collections/paycol_7/payment-sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /store/carts/cart_2/complete", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"order"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc := &Service{
		Client: &commerce.Client{
			BaseURL:        srv.URL,
			PublishableKey: "pk_test",
			HTTP:           resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		},
		Contract: config.ContractV2,
	}
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_2"})
	require.NoError(t, err)
	require.Equal(t, 2, fetches)
}

func TestPayRequiresCartID(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend, config.ContractV1)
	_, err := svc.Pay(context.Background(), PayInput{})
	require.ErrorIs(t, err, ErrCartIDRequired)
	require.Empty(t, backend.callLog())
}

func TestPayNotConfiguredFailsBeforeNetwork(t *testing.T) {
	backend := newFakeBackend()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	svc := &Service{
		Client:   &commerce.Client{BaseURL: srv.URL, HTTP: resilience.HTTPClient{Client: srv.Client()}},
		Contract: config.ContractV1,
	}
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	require.ErrorIs(t, err, commerce.ErrNotConfigured)
	require.Empty(t, backend.callLog())
}

func TestPayDefaultsProvider(t *testing.T) {
	var gotProvider string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /store/carts/cart_1/payment-sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /store/carts/cart_1/payment-session", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ProviderID string `json:"provider_id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotProvider = payload.ProviderID
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /store/carts/cart_1/complete", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"order"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc := &Service{
		Client: &commerce.Client{
			BaseURL:        srv.URL,
			PublishableKey: "pk_test",
			HTTP:           resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		},
		Contract: config.ContractV1,
	}
	_, err := svc.Pay(context.Background(), PayInput{CartID: "cart_1"})
	require.NoError(t, err)
	require.Equal(t, "manual", gotProvider)
}
