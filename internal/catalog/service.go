package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/threedeality/storefront-api/internal/commerce"
)

// Service reads the product catalog through the commerce backend, caching
// assembled pages so repeat storefront loads skip the upstream round trip.
type Service struct {
	Client       *commerce.Client
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

func (s *Service) limits(limit int) int {
	def := s.DefaultLimit
	if def <= 0 {
		def = 20
	}
	max := s.MaxLimit
	if max <= 0 {
		max = 100
	}
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// ListResult is an assembled catalog page: products, total count and the
// category list derived from product tags.
type ListResult struct {
	Products   []commerce.Product `json:"products"`
	Count      int                `json:"count"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	Categories []string           `json:"categories"`
}

// List returns a catalog page, served from cache when possible.
func (s *Service) List(ctx context.Context, limit, offset int) (ListResult, error) {
	limit = s.limits(limit)
	if offset < 0 {
		offset = 0
	}
	key := fmt.Sprintf("catalog:list:%d:%d", limit, offset)

	var cached ListResult
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	products, count, err := s.Client.ListProducts(ctx, limit, offset)
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{
		Products:   products,
		Count:      count,
		Limit:      limit,
		Offset:     offset,
		Categories: Categories(products),
	}
	// Serve-stale-never: a cache write failure only costs the next request
	// an upstream call.
	_ = s.Cache.SetJSON(ctx, key, result)
	return result, nil
}

// Get returns one product, served from cache when possible.
func (s *Service) Get(ctx context.Context, productID string) (commerce.Product, error) {
	key := "catalog:product:" + productID

	var cached commerce.Product
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	product, err := s.Client.GetProduct(ctx, productID)
	if err != nil {
		return commerce.Product{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, product)
	return product, nil
}

// Categories derives the storefront's category list from product tags:
// unique tag values, title-cased as received, sorted.
func Categories(products []commerce.Product) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range products {
		for _, tag := range p.Tags {
			value := strings.TrimSpace(tag.Value)
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			out = append(out, value)
		}
	}
	sort.Strings(out)
	return out
}
