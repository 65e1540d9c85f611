package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/obs"
)

// ErrItemNotFound is returned when a local cart mutation references an
// unknown item id.
var ErrItemNotFound = errors.New("session: item not found")

// QuoteItem is an entry in the session's local quote cart: a priced STL
// upload that has no backend variant yet. UnitPrice is paise.
type QuoteItem struct {
	ID            string  `json:"id"`
	Filename      string  `json:"filename"`
	Material      string  `json:"material"`
	InfillPercent int     `json:"infill_percent"`
	LayerHeight   float64 `json:"layer_height"`
	UnitPrice     int64   `json:"unit_price"`
	Quantity      int     `json:"quantity"`
}

// Service is the server-side cart session layer. Every mutation goes to the
// commerce backend and the returned cart is authoritative; the service never
// computes money locally.
type Service struct {
	Store    Store
	Client   *commerce.Client
	RegionID string
}

// Ensure returns the session's cart, creating and binding a fresh one when
// no binding exists or the bound cart can no longer be fetched (expired or
// already completed carts both land here).
func (s *Service) Ensure(ctx context.Context, sessionID string) (commerce.Cart, error) {
	cartID, err := s.Store.CartID(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNoBinding) {
		return commerce.Cart{}, err
	}
	if cartID != "" {
		cart, err := s.Client.GetCart(ctx, cartID)
		if err == nil && cart.CompletedAt == "" {
			return cart, nil
		}
		if errors.Is(err, commerce.ErrNotConfigured) {
			return commerce.Cart{}, err
		}
		// Unfetchable or completed: fall through and start over.
	}
	return s.createAndBind(ctx, sessionID)
}

// Clear abandons the bound cart and binds a brand-new one. Completed carts
// cannot be reused, so clearing always allocates.
func (s *Service) Clear(ctx context.Context, sessionID string) (commerce.Cart, error) {
	cart, err := s.createAndBind(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	if err := s.Store.SaveLocalItems(ctx, sessionID, nil); err != nil {
		return commerce.Cart{}, err
	}
	return cart, nil
}

func (s *Service) createAndBind(ctx context.Context, sessionID string) (commerce.Cart, error) {
	cart, err := s.Client.CreateCart(ctx, s.RegionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	if err := s.Store.BindCart(ctx, sessionID, cart.ID); err != nil {
		return commerce.Cart{}, err
	}
	return cart, nil
}

// AddItem adds a variant to the session's cart.
func (s *Service) AddItem(ctx context.Context, sessionID, variantID string, quantity int) (commerce.Cart, error) {
	if quantity < 1 {
		quantity = 1
	}
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	updated, err := s.Client.AddLineItem(ctx, cart.ID, variantID, quantity)
	s.count("add_item", err)
	return updated, err
}

// UpdateItemQuantity changes a line item's quantity. Quantities below one
// remove the item instead.
func (s *Service) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) (commerce.Cart, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, sessionID, itemID)
	}
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	updated, err := s.Client.UpdateLineItem(ctx, cart.ID, itemID, quantity)
	s.count("update_item", err)
	return updated, err
}

// RemoveItem deletes a line item and refetches the cart, since the backend's
// delete answer omits the cart body.
func (s *Service) RemoveItem(ctx context.Context, sessionID, itemID string) (commerce.Cart, error) {
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	if err := s.Client.DeleteLineItem(ctx, cart.ID, itemID); err != nil {
		s.count("remove_item", err)
		return commerce.Cart{}, err
	}
	updated, err := s.Client.GetCart(ctx, cart.ID)
	s.count("remove_item", err)
	return updated, err
}

// ApplyPromoCode attaches a promotion code. The backend resolves discounts;
// the returned totals are taken as-is.
func (s *Service) ApplyPromoCode(ctx context.Context, sessionID, code string) (commerce.Cart, error) {
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	codes := append([]string{}, cart.PromoCodes...)
	trimmed := strings.TrimSpace(code)
	if trimmed != "" {
		codes = append(codes, trimmed)
	}
	updated, err := s.Client.ApplyPromoCodes(ctx, cart.ID, codes)
	s.count("apply_promo", err)
	return updated, err
}

// SetAddress writes the email and shipping address onto the cart.
func (s *Service) SetAddress(ctx context.Context, sessionID, email string, address commerce.Address) (commerce.Cart, error) {
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	payload := map[string]any{"shipping_address": address}
	if strings.TrimSpace(email) != "" {
		payload["email"] = email
	}
	updated, err := s.Client.UpdateCart(ctx, cart.ID, payload)
	s.count("set_address", err)
	return updated, err
}

// ShippingOptions lists the fulfillment options the backend offers for the
// session's cart.
func (s *Service) ShippingOptions(ctx context.Context, sessionID string) ([]commerce.ShippingOption, error) {
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Client.ListShippingOptions(ctx, cart.ID)
}

// SelectShippingMethod selects a shipping option onto the session's cart.
func (s *Service) SelectShippingMethod(ctx context.Context, sessionID, optionID string) (commerce.Cart, error) {
	cart, err := s.Ensure(ctx, sessionID)
	if err != nil {
		return commerce.Cart{}, err
	}
	updated, err := s.Client.SelectShippingMethod(ctx, cart.ID, optionID)
	s.count("select_shipping", err)
	return updated, err
}

// AddLocalItem puts a priced quote into the session's local cart. A quote
// for the same filename and material increments the existing line instead of
// appending a duplicate.
func (s *Service) AddLocalItem(ctx context.Context, sessionID string, item QuoteItem) ([]QuoteItem, error) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	items, err := s.Store.LocalItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	merged := false
	for i := range items {
		if items[i].Filename == item.Filename && items[i].Material == item.Material {
			items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		items = append(items, item)
	}
	if err := s.Store.SaveLocalItems(ctx, sessionID, items); err != nil {
		return nil, err
	}
	s.count("add_local_item", nil)
	return items, nil
}

// RemoveLocalItem drops a quote line by id.
func (s *Service) RemoveLocalItem(ctx context.Context, sessionID, itemID string) ([]QuoteItem, error) {
	items, err := s.Store.LocalItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	kept := items[:0]
	found := false
	for _, it := range items {
		if it.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return nil, ErrItemNotFound
	}
	if err := s.Store.SaveLocalItems(ctx, sessionID, kept); err != nil {
		return nil, err
	}
	s.count("remove_local_item", nil)
	return kept, nil
}

// LocalItems returns the session's local quote cart.
func (s *Service) LocalItems(ctx context.Context, sessionID string) ([]QuoteItem, error) {
	return s.Store.LocalItems(ctx, sessionID)
}

func (s *Service) count(operation string, err error) {
	if obs.CartMutationTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	obs.CartMutationTotal.WithLabelValues(operation, result).Inc()
}
