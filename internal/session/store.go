package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoBinding indicates the session has no cart bound yet.
var ErrNoBinding = errors.New("session: no cart bound")

// Store persists the session-to-cart binding and the session's local quote
// cart in redis. Bindings expire with the session tokens so abandoned
// sessions clean themselves up.
type Store struct {
	R       redis.UniversalClient
	BindTTL time.Duration
}

func (s Store) ttl() time.Duration {
	if s.BindTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.BindTTL
}

func cartKey(sessionID string) string {
	return "session:" + sessionID + ":cart_id"
}

func localCartKey(sessionID string) string {
	return "session:" + sessionID + ":local_cart"
}

// BindCart points the session at a cart, replacing any previous binding.
func (s Store) BindCart(ctx context.Context, sessionID, cartID string) error {
	if s.R == nil {
		return errors.New("session: redis not configured")
	}
	if err := s.R.Set(ctx, cartKey(sessionID), cartID, s.ttl()).Err(); err != nil {
		return fmt.Errorf("session: bind cart: %w", err)
	}
	return nil
}

// CartID returns the cart bound to the session, or ErrNoBinding.
func (s Store) CartID(ctx context.Context, sessionID string) (string, error) {
	if s.R == nil {
		return "", errors.New("session: redis not configured")
	}
	cartID, err := s.R.Get(ctx, cartKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoBinding
	}
	if err != nil {
		return "", fmt.Errorf("session: load binding: %w", err)
	}
	return cartID, nil
}

// LocalItems loads the session's local quote cart. A missing key is an
// empty cart.
func (s Store) LocalItems(ctx context.Context, sessionID string) ([]QuoteItem, error) {
	if s.R == nil {
		return nil, errors.New("session: redis not configured")
	}
	raw, err := s.R.Get(ctx, localCartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load local cart: %w", err)
	}
	var items []QuoteItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("session: decode local cart: %w", err)
	}
	return items, nil
}

// SaveLocalItems replaces the session's local quote cart.
func (s Store) SaveLocalItems(ctx context.Context, sessionID string, items []QuoteItem) error {
	if s.R == nil {
		return errors.New("session: redis not configured")
	}
	if len(items) == 0 {
		if err := s.R.Del(ctx, localCartKey(sessionID)).Err(); err != nil {
			return fmt.Errorf("session: clear local cart: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("session: encode local cart: %w", err)
	}
	if err := s.R.Set(ctx, localCartKey(sessionID), raw, s.ttl()).Err(); err != nil {
		return fmt.Errorf("session: save local cart: %w", err)
	}
	return nil
}
