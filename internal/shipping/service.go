package shipping

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/obs"
	"github.com/threedeality/storefront-api/internal/shiprocket"
)

// ErrPlatformNotConfigured is returned when the shipping platform client is
// absent or missing credentials.
var ErrPlatformNotConfigured = errors.New("shipping: platform not configured")

// Service submits completed commerce orders to the shipping platform.
type Service struct {
	Platform  *shiprocket.Client
	Pickup    string
	ChannelID string
	Logger    zerolog.Logger
}

// Submit transforms the order and creates it on the platform, returning the
// platform's raw response for verbatim forwarding. Transport and login
// failures come back as errors; platform rejections come back in the
// response with their original status and body.
func (s *Service) Submit(ctx context.Context, order commerce.Order, method PaymentMethod) (shiprocket.Response, error) {
	if s == nil || !s.Platform.Ready() {
		s.count(method, "misconfigured")
		return shiprocket.Response{}, ErrPlatformNotConfigured
	}
	payload := BuildOrder(order, method, s.Pickup, s.ChannelID)
	resp, err := s.Platform.CreateOrder(ctx, payload)
	if err != nil {
		s.count(method, "error")
		s.Logger.Error().Err(err).Str("order_id", payload.OrderID).Msg("shipping order submit failed")
		return shiprocket.Response{}, err
	}
	if resp.OK() {
		s.count(method, "success")
		s.Logger.Info().Str("order_id", payload.OrderID).Int("status", resp.Status).Msg("shipping order submitted")
	} else {
		s.count(method, "rejected")
		s.Logger.Warn().Str("order_id", payload.OrderID).Int("status", resp.Status).Msg("shipping order rejected")
	}
	return resp, nil
}

func (s *Service) count(method PaymentMethod, result string) {
	if obs.ShippingSubmitTotal == nil {
		return
	}
	obs.ShippingSubmitTotal.WithLabelValues(string(method), result).Inc()
}
