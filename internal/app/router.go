package app

import (
	"github.com/go-chi/chi/v5"

	"github.com/threedeality/storefront-api/internal/session"
)

// Mount attaches health probes and the /api/v1 tree to the router. The
// caller owns the outer middleware stack (logging, metrics, CORS).
func (d *Dependencies) Mount(r chi.Router) {
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(d.SessionMW.Resolve)

		v.Get("/products", d.Catalog.Products)
		v.Get("/products/{productID}", d.Catalog.ProductDetail)
		v.Get("/reviews", d.Reviews.List)

		v.With(d.ContactLimit).Post("/contact", d.Contact.Contact)

		v.With(d.QuoteLimit.Middleware).Post("/quote", d.Quote.Estimate)
		v.Get("/quote/materials", d.Quote.ListMaterials)

		v.Post("/session", d.Session.Start)

		v.Group(func(s chi.Router) {
			s.Use(session.RequireSession)
			s.Get("/cart", d.Session.GetCart)
			s.Delete("/cart", d.Session.ClearCart)
			s.Post("/cart/items", d.Session.AddItem)
			s.Patch("/cart/items/{itemID}", d.Session.UpdateItem)
			s.Delete("/cart/items/{itemID}", d.Session.RemoveItem)
			s.Post("/cart/promotions", d.Session.ApplyPromo)
			s.Post("/cart/address", d.Session.SetAddress)
			s.Get("/cart/shipping-options", d.Session.ShippingOptions)
			s.Post("/cart/shipping-method", d.Session.SelectShippingMethod)
			s.Get("/cart/local-items", d.Session.LocalItems)
			s.Post("/cart/local-items", d.Session.AddLocalItem)
			s.Delete("/cart/local-items/{itemID}", d.Session.RemoveLocalItem)
		})

		v.Group(func(g chi.Router) {
			g.Use(d.Idem.Middleware)
			g.Post("/checkout/pay", d.Checkout.Pay)
			g.Post("/shipping/orders", d.Shipping.SubmitOrder)
		})
	})
}
