package shipping

import (
	"strconv"
	"time"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/money"
)

// PaymentMethod is the platform-side payment classification.
type PaymentMethod string

const (
	// MethodCOD marks a cash-on-delivery order.
	MethodCOD PaymentMethod = "COD"
	// MethodPrepaid marks an order whose payment was captured online.
	MethodPrepaid PaymentMethod = "Prepaid"
)

// Default package dimensions used when the storefront has no per-product
// measurements. Centimetres and kilograms.
const (
	defaultLength  = 10
	defaultBreadth = 10
	defaultHeight  = 10
	defaultWeight  = 0.5
)

// OrderItem is a line entry in the platform order payload. Prices are rupees.
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Discount     float64 `json:"discount"`
	Tax          float64 `json:"tax"`
}

// OrderPayload is the ad hoc order shape the shipping platform accepts.
type OrderPayload struct {
	OrderID        string `json:"order_id"`
	OrderDate      string `json:"order_date"`
	PickupLocation string `json:"pickup_location"`
	ChannelID      string `json:"channel_id,omitempty"`

	BillingCustomerName string `json:"billing_customer_name"`
	BillingLastName     string `json:"billing_last_name"`
	BillingAddress      string `json:"billing_address"`
	BillingAddress2     string `json:"billing_address_2"`
	BillingCity         string `json:"billing_city"`
	BillingPincode      string `json:"billing_pincode"`
	BillingState        string `json:"billing_state"`
	BillingCountry      string `json:"billing_country"`
	BillingEmail        string `json:"billing_email"`
	BillingPhone        string `json:"billing_phone"`

	ShippingIsBilling bool `json:"shipping_is_billing"`

	OrderItems    []OrderItem   `json:"order_items"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	SubTotal      float64       `json:"sub_total"`

	Length  float64 `json:"length"`
	Breadth float64 `json:"breadth"`
	Height  float64 `json:"height"`
	Weight  float64 `json:"weight"`
}

// BuildOrder maps a completed commerce order into the platform payload.
// The shipping address wins over billing; missing fields collapse to the
// platform's minimum-viable defaults. All money converts paise to rupees.
func BuildOrder(order commerce.Order, method PaymentMethod, pickup, channelID string) OrderPayload {
	addr := commerce.Address{}
	if order.ShippingAddress != nil {
		addr = *order.ShippingAddress
	} else if order.BillingAddress != nil {
		addr = *order.BillingAddress
	}

	orderID := order.ID
	if order.DisplayID != 0 {
		orderID = strconv.FormatInt(order.DisplayID, 10)
	}

	name := addr.FirstName
	if name == "" {
		name = "Customer"
	}

	items := make([]OrderItem, 0, len(order.Items))
	for _, it := range order.Items {
		sku := it.VariantSKU
		if sku == "" {
			sku = it.ID
		}
		items = append(items, OrderItem{
			Name:         it.Title,
			SKU:          sku,
			Units:        it.Quantity,
			SellingPrice: money.Float(money.PaiseToRupees(it.UnitPrice)),
		})
	}

	return OrderPayload{
		OrderID:        orderID,
		OrderDate:      orderDate(order.CreatedAt),
		PickupLocation: pickup,
		ChannelID:      channelID,

		BillingCustomerName: name,
		BillingLastName:     addr.LastName,
		BillingAddress:      addr.Address1,
		BillingAddress2:     addr.Address2,
		BillingCity:         addr.City,
		BillingPincode:      addr.PostalCode,
		BillingState:        addr.Province,
		BillingCountry:      "India",
		BillingEmail:        order.Email,
		BillingPhone:        addr.Phone,

		ShippingIsBilling: true,

		OrderItems:    items,
		PaymentMethod: method,
		SubTotal:      money.Float(money.PaiseToRupees(order.Subtotal)),

		Length:  defaultLength,
		Breadth: defaultBreadth,
		Height:  defaultHeight,
		Weight:  defaultWeight,
	}
}

func orderDate(createdAt string) string {
	if createdAt != "" {
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}
