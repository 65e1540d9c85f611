package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/threedeality/storefront-api/internal/resilience"
)

// ErrNotConfigured indicates the client is missing its base URL or key.
var ErrNotConfigured = errors.New("commerce: client not configured")

// APIError carries a non-2xx upstream status and the raw response body so the
// proxies can forward both verbatim.
type APIError struct {
	Status int
	Body   []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("commerce: upstream status %d: %s", e.Status, truncate(e.Body, 256))
}

// IsConflict reports whether the upstream answered 409. Creation calls treat
// conflicts as "already exists", not failure.
func (e *APIError) IsConflict() bool {
	return e != nil && e.Status == http.StatusConflict
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Response is the raw outcome of an upstream call, preserved for verbatim
// forwarding by the checkout proxy.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client speaks the commerce backend's store API using publishable-key
// authentication. All calls go through the resilience wrapper.
type Client struct {
	BaseURL        string
	PublishableKey string
	HTTP           resilience.HTTPClient
}

// Ready reports whether the client has the configuration it needs to make a
// call. Callers fail fast with a 500 before any network traffic when not.
func (c *Client) Ready() bool {
	return c != nil && strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.PublishableKey) != ""
}

// Do performs a store-API request and returns the raw status and body.
// Transport-level failures are returned as errors; HTTP-level failures are
// returned in the Response so callers can inspect status and body.
func (c *Client) Do(ctx context.Context, method, path string, payload any) (Response, error) {
	if !c.Ready() {
		return Response{}, ErrNotConfigured
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("commerce: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-publishable-api-key", c.PublishableKey)

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Body: data}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	resp, err := c.Do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &APIError{Status: resp.Status, Body: resp.Body}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("commerce: decode response: %w", err)
	}
	return nil
}

// GetCart retrieves a cart by id.
func (c *Client) GetCart(ctx context.Context, cartID string) (Cart, error) {
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/store/carts/"+url.PathEscape(cartID), nil, &envelope)
	return envelope.Cart, err
}

// CreateCart creates a fresh cart, optionally pinned to a region.
func (c *Client) CreateCart(ctx context.Context, regionID string) (Cart, error) {
	payload := map[string]any{}
	if strings.TrimSpace(regionID) != "" {
		payload["region_id"] = regionID
	}
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts", payload, &envelope)
	return envelope.Cart, err
}

// UpdateCart patches cart-level fields (email, shipping address, promo codes).
func (c *Client) UpdateCart(ctx context.Context, cartID string, payload map[string]any) (Cart, error) {
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID), payload, &envelope)
	return envelope.Cart, err
}

// AddLineItem adds a variant to the cart and returns the updated cart.
func (c *Client) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (Cart, error) {
	payload := map[string]any{"variant_id": variantID, "quantity": quantity}
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/line-items", payload, &envelope)
	return envelope.Cart, err
}

// UpdateLineItem changes a line item's quantity and returns the updated cart.
func (c *Client) UpdateLineItem(ctx context.Context, cartID, itemID string, quantity int) (Cart, error) {
	payload := map[string]any{"quantity": quantity}
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/line-items/"+url.PathEscape(itemID), payload, &envelope)
	return envelope.Cart, err
}

// DeleteLineItem removes a line item. The backend answers with a deleted
// marker rather than the cart, so callers refetch.
func (c *Client) DeleteLineItem(ctx context.Context, cartID, itemID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/store/carts/"+url.PathEscape(cartID)+"/line-items/"+url.PathEscape(itemID), nil, nil)
}

// ApplyPromoCodes attaches promotion/gift-card codes to the cart. The backend
// resolves codes into discount adjustments; the client never computes them.
func (c *Client) ApplyPromoCodes(ctx context.Context, cartID string, codes []string) (Cart, error) {
	payload := map[string]any{"promo_codes": codes}
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/promotions", payload, &envelope)
	return envelope.Cart, err
}

// ListShippingOptions lists fulfillment options available for a cart.
func (c *Client) ListShippingOptions(ctx context.Context, cartID string) ([]ShippingOption, error) {
	var envelope struct {
		ShippingOptions []ShippingOption `json:"shipping_options"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/store/shipping-options?cart_id="+url.QueryEscape(cartID), nil, &envelope)
	return envelope.ShippingOptions, err
}

// SelectShippingMethod selects a shipping option onto the cart.
func (c *Client) SelectShippingMethod(ctx context.Context, cartID, optionID string) (Cart, error) {
	payload := map[string]any{"option_id": optionID}
	var envelope struct {
		Cart Cart `json:"cart"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/shipping-methods", payload, &envelope)
	return envelope.Cart, err
}

// ListProducts pages through the catalog.
func (c *Client) ListProducts(ctx context.Context, limit, offset int) ([]Product, int, error) {
	if limit <= 0 {
		limit = 100
	}
	var envelope struct {
		Products []Product `json:"products"`
		Count    int       `json:"count"`
	}
	path := "/store/products?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &envelope)
	return envelope.Products, envelope.Count, err
}

// GetProduct retrieves a single product by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (Product, error) {
	var envelope struct {
		Product Product `json:"product"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/store/products/"+url.PathEscape(productID), nil, &envelope)
	return envelope.Product, err
}

// CreatePaymentSessions provisions payment sessions directly on a cart (v1
// contract). A 409 means the sessions already exist and is surfaced as a
// conflict APIError for callers to tolerate.
func (c *Client) CreatePaymentSessions(ctx context.Context, cartID string) (Response, error) {
	return c.Do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/payment-sessions", nil)
}

// SelectPaymentSession selects the provider for a cart's payment session (v1).
func (c *Client) SelectPaymentSession(ctx context.Context, cartID, providerID string) (Response, error) {
	payload := map[string]any{"provider_id": providerID}
	return c.Do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/payment-session", payload)
}

// SetPaymentSession is the PUT-style setter fallback some backend releases
// expect instead of the select call.
func (c *Client) SetPaymentSession(ctx context.Context, cartID, providerID string) (Response, error) {
	payload := map[string]any{"provider_id": providerID}
	return c.Do(ctx, http.MethodPut, "/store/carts/"+url.PathEscape(cartID)+"/payment-sessions", payload)
}

// CreatePaymentCollection provisions a payment collection for a cart (v2).
func (c *Client) CreatePaymentCollection(ctx context.Context, cartID string) (PaymentCollection, Response, error) {
	payload := map[string]any{"cart_id": cartID}
	resp, err := c.Do(ctx, http.MethodPost, "/store/payment-collections", payload)
	if err != nil || !resp.OK() {
		return PaymentCollection{}, resp, err
	}
	var envelope struct {
		PaymentCollection PaymentCollection `json:"payment_collection"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return PaymentCollection{}, resp, fmt.Errorf("commerce: decode payment collection: %w", err)
	}
	return envelope.PaymentCollection, resp, nil
}

// CreateCollectionSession creates a payment session scoped to a collection (v2).
func (c *Client) CreateCollectionSession(ctx context.Context, collectionID, providerID string) (Response, error) {
	payload := map[string]any{"provider_id": providerID}
	return c.Do(ctx, http.MethodPost, "/store/payment-collections/"+url.PathEscape(collectionID)+"/payment-sessions", payload)
}

// CompleteCart asks the backend to settle the cart into an order. The raw
// response is forwarded verbatim by the checkout proxy.
func (c *Client) CompleteCart(ctx context.Context, cartID string) (Response, error) {
	return c.Do(ctx, http.MethodPost, "/store/carts/"+url.PathEscape(cartID)+"/complete", nil)
}
