package commerce

import "encoding/json"

// Address is the storefront-visible address shape of the commerce backend.
type Address struct {
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Address1   string `json:"address_1,omitempty"`
	Address2   string `json:"address_2,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// LineItem is a product/variant + quantity entry within a cart or order.
// Money fields are minor units (paise) and always backend-computed.
type LineItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	VariantID  string `json:"variant_id,omitempty"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Total      int64  `json:"total"`
}

// PaymentSession is a backend-side handle binding a payment provider to a
// cart. The proxy never interprets Data beyond forwarding it.
type PaymentSession struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"provider_id"`
	Status     string          `json:"status,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// PaymentCollection groups the payment sessions provisioned for a cart.
type PaymentCollection struct {
	ID              string           `json:"id"`
	PaymentSessions []PaymentSession `json:"payment_sessions,omitempty"`
}

// ShippingMethod is a shipping option selected onto a cart.
type ShippingMethod struct {
	ID               string `json:"id"`
	ShippingOptionID string `json:"shipping_option_id"`
	Amount           int64  `json:"amount"`
}

// Cart mirrors the backend cart: identifier, line items and computed totals.
// All totals are backend-authoritative; the storefront only displays them.
type Cart struct {
	ID                string             `json:"id"`
	RegionID          string             `json:"region_id,omitempty"`
	CurrencyCode      string             `json:"currency_code,omitempty"`
	Email             string             `json:"email,omitempty"`
	Items             []LineItem         `json:"items"`
	Subtotal          int64              `json:"subtotal"`
	DiscountTotal     int64              `json:"discount_total"`
	ShippingTotal     int64              `json:"shipping_total"`
	TaxTotal          int64              `json:"tax_total"`
	Total             int64              `json:"total"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods,omitempty"`
	PromoCodes        []string           `json:"promo_codes,omitempty"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	CompletedAt       string             `json:"completed_at,omitempty"`
}

// ItemCount sums line-item quantities. Pure projection used for display
// badges; never persisted.
func (c Cart) ItemCount() int {
	count := 0
	for _, it := range c.Items {
		count += it.Quantity
	}
	return count
}

// Order is produced by the backend when a cart completes. The storefront
// receives and displays it; it does not construct or validate one.
type Order struct {
	ID              string     `json:"id"`
	DisplayID       int64      `json:"display_id,omitempty"`
	Email           string     `json:"email,omitempty"`
	CurrencyCode    string     `json:"currency_code,omitempty"`
	Items           []LineItem `json:"items"`
	Subtotal        int64      `json:"subtotal"`
	Total           int64      `json:"total"`
	ShippingAddress *Address   `json:"shipping_address,omitempty"`
	BillingAddress  *Address   `json:"billing_address,omitempty"`
	CreatedAt       string     `json:"created_at,omitempty"`
}

// ShippingOption is a fulfillment option the backend offers for a cart.
type ShippingOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// Variant is a purchasable variant of a product.
type Variant struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SKU             string `json:"sku,omitempty"`
	CalculatedPrice int64  `json:"calculated_price"`
}

// Tag is a product tag; the storefront derives its category list from these.
type Tag struct {
	Value string `json:"value"`
}

// Product is a catalog entry from the commerce backend.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Tags        []Tag     `json:"tags,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
}
