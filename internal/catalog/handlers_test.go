package catalog_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/threedeality/storefront-api/internal/catalog"
	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/resilience"
)

const productsPage = `{
	"products": [
		{"id": "prod_1", "title": "Voronoi Lamp", "tags": [{"value": "Lighting"}, {"value": "Decor"}]},
		{"id": "prod_2", "title": "Desk Bracket", "tags": [{"value": "Functional"}]},
		{"id": "prod_3", "title": "Planter", "tags": [{"value": "Decor"}]}
	],
	"count": 3
}`

func newTestStack(t *testing.T) (*catalog.Handler, *atomic.Int64) {
	t.Helper()
	var upstreamHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /store/products", func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
		_, _ = w.Write([]byte(productsPage))
	})
	mux.HandleFunc("GET /store/products/prod_1", func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
		_, _ = w.Write([]byte(`{"product":{"id":"prod_1","title":"Voronoi Lamp"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := &catalog.Service{
		Client: &commerce.Client{
			BaseURL:        srv.URL,
			PublishableKey: "pk_test",
			HTTP:           resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		},
		Cache:        catalog.NewCache(rdb, time.Minute),
		DefaultLimit: 20,
		MaxLimit:     100,
	}
	return &catalog.Handler{Svc: svc}, &upstreamHits
}

func router(h *catalog.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/v1/products", h.Products)
	r.Get("/api/v1/products/{productID}", h.ProductDetail)
	return r
}

func TestProductsListAndCategories(t *testing.T) {
	h, _ := newTestStack(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3", rec.Header().Get("X-Total-Count"))

	var result catalog.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Products, 3)
	require.Equal(t, 3, result.Count)
	require.Equal(t, []string{"Decor", "Functional", "Lighting"}, result.Categories)
}

func TestProductsListIsCached(t *testing.T) {
	h, hits := newTestStack(t)
	r := router(h)
	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, int64(1), hits.Load())
}

func TestProductDetail(t *testing.T) {
	h, _ := newTestStack(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Voronoi Lamp")
}

func TestProductDetailForwardsUpstreamError(t *testing.T) {
	h, _ := newTestStack(t)
	rec := httptest.NewRecorder()
	router(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/prod_missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategoriesDeduplicate(t *testing.T) {
	products := []commerce.Product{
		{Tags: []commerce.Tag{{Value: "Decor"}, {Value: "Decor"}}},
		{Tags: []commerce.Tag{{Value: ""}, {Value: "Art"}}},
	}
	require.Equal(t, []string{"Art", "Decor"}, catalog.Categories(products))
}
