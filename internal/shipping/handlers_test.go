package shipping

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/threedeality/storefront-api/internal/resilience"
	"github.com/threedeality/storefront-api/internal/shiprocket"
)

// fakePlatform scripts the shipping platform: login always succeeds, order
// creation answers with the configured status/body and counts hits.
type fakePlatform struct {
	hits   atomic.Int64
	status int
	body   string
	got    atomic.Pointer[OrderPayload]
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/external/auth/login":
		_, _ = w.Write([]byte(`{"token":"tok_1"}`))
	case "/v1/external/orders/create/adhoc":
		f.hits.Add(1)
		var payload OrderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			f.got.Store(&payload)
		}
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	default:
		http.NotFound(w, r)
	}
}

func newTestHandler(t *testing.T, platform *fakePlatform) *Handler {
	t.Helper()
	if platform.status == 0 {
		platform.status = http.StatusOK
	}
	srv := httptest.NewServer(platform)
	t.Cleanup(srv.Close)
	return &Handler{Svc: &Service{
		Platform: &shiprocket.Client{
			BaseURL:  srv.URL,
			Email:    "ops@example.com",
			Password: "secret",
			HTTP:     resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		},
		Pickup: "Primary",
		Logger: zerolog.Nop(),
	}}
}

func postOrder(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.SubmitOrder(rec, req)
	return rec
}

func TestSubmitOrderRequiresOrder(t *testing.T) {
	platform := &fakePlatform{}
	h := newTestHandler(t, platform)

	rec := postOrder(t, h, `{"method":"cod"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "order required")
	require.Zero(t, platform.hits.Load())
}

func TestSubmitOrderDefersUnpaidGatewayOrders(t *testing.T) {
	platform := &fakePlatform{}
	h := newTestHandler(t, platform)

	rec := postOrder(t, h, `{"order":{"id":"order_1"},"method":"hdfc","paid":false}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Zero(t, platform.hits.Load())
}

func TestSubmitOrderPaidGatewayOrderIsPrepaid(t *testing.T) {
	platform := &fakePlatform{body: `{"order_id":9}`}
	h := newTestHandler(t, platform)

	rec := postOrder(t, h, `{"order":{"id":"order_1","display_id":7},"method":"hdfc","paid":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), platform.hits.Load())
	require.Equal(t, MethodPrepaid, platform.got.Load().PaymentMethod)
}

func TestSubmitOrderDefaultsToCOD(t *testing.T) {
	platform := &fakePlatform{body: `{"order_id":9}`}
	h := newTestHandler(t, platform)

	rec := postOrder(t, h, `{"order":{"id":"order_1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, MethodCOD, platform.got.Load().PaymentMethod)
}

func TestSubmitOrderForwardsPlatformResponse(t *testing.T) {
	platform := &fakePlatform{status: http.StatusUnprocessableEntity, body: `{"message":"Wrong Pickup location"}`}
	h := newTestHandler(t, platform)

	rec := postOrder(t, h, `{"order":{"id":"order_1"},"method":"cod"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.JSONEq(t, `{"message":"Wrong Pickup location"}`, rec.Body.String())
}

func TestSubmitOrderMisconfiguredIs500(t *testing.T) {
	h := &Handler{Svc: &Service{Platform: &shiprocket.Client{}, Logger: zerolog.Nop()}}
	rec := postOrder(t, h, `{"order":{"id":"order_1"}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestSubmitOrderAsyncEnqueues(t *testing.T) {
	platform := &fakePlatform{}
	h := newTestHandler(t, platform)
	queue := &fakeEnqueuer{}
	h.Async = true
	h.Queue = queue

	rec := postOrder(t, h, `{"order":{"id":"order_1"},"method":"cod"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Zero(t, platform.hits.Load())
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TypeSubmitOrder, queue.tasks[0].Type())

	var payload submitOrderPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, "order_1", payload.Order.ID)
	require.Equal(t, MethodCOD, payload.Method)
}

func TestHandleSubmitOrderSkipsRetryOnRejection(t *testing.T) {
	platform := &fakePlatform{status: http.StatusUnprocessableEntity, body: `{"message":"bad pincode"}`}
	h := newTestHandler(t, platform)

	task, err := NewSubmitOrderTask(sampleOrder(), MethodCOD)
	require.NoError(t, err)
	err = h.Svc.HandleSubmitOrder(t.Context(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSubmitOrderSucceeds(t *testing.T) {
	platform := &fakePlatform{body: `{"order_id":1}`}
	h := newTestHandler(t, platform)

	task, err := NewSubmitOrderTask(sampleOrder(), MethodPrepaid)
	require.NoError(t, err)
	require.NoError(t, h.Svc.HandleSubmitOrder(t.Context(), task))
}
