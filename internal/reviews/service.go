package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/threedeality/storefront-api/internal/resilience"
)

const cacheKey = "reviews:feed"

// Review is a storefront-facing business review.
type Review struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Rating   int    `json:"rating"`
	Review   string `json:"review"`
	Verified bool   `json:"verified"`
	Photo    string `json:"profile_photo,omitempty"`
}

// Feed is the assembled review feed with aggregates.
type Feed struct {
	Reviews       []Review `json:"reviews"`
	AverageRating float64  `json:"average_rating"`
	TotalReviews  int      `json:"total_reviews"`
	Source        string   `json:"source"`
}

// fallbackReviews ship with the binary so the social-proof section renders
// before the business-profile integration is configured.
var fallbackReviews = []Review{
	{ID: "1", Name: "Kartik Bramhankar", Date: "2025-05-28", Rating: 5, Review: "Good", Verified: true},
	{ID: "2", Name: "Sanju D", Date: "2025-05-25", Rating: 5, Review: "Good response with immediate action", Verified: true},
	{ID: "3", Name: "Arul Anand Joseph P M", Date: "2025-05-27", Rating: 5, Review: "I have been purchasing parts required for my hobby project also fabricated pcb with them. The quality of product as well as...", Verified: true},
	{ID: "4", Name: "Priya Sharma", Date: "2025-05-20", Rating: 5, Review: "Excellent 3D printing quality and fast delivery. Highly recommended for prototyping work.", Verified: true},
	{ID: "5", Name: "Rajesh Kumar", Date: "2025-05-18", Rating: 5, Review: "Perfect custom parts for my drone project. Great communication and professional service.", Verified: true},
}

// Service serves the business-profile review feed, caching upstream pages in
// redis and degrading to the canned list whenever the feed is unreachable.
type Service struct {
	BaseURL  string
	Location string
	APIKey   string
	HTTP     resilience.HTTPClient
	Redis    redis.UniversalClient
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

func (s *Service) configured() bool {
	return s != nil && strings.TrimSpace(s.BaseURL) != "" && strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Location) != ""
}

func (s *Service) cacheTTL() time.Duration {
	if s.CacheTTL <= 0 {
		return time.Hour
	}
	return s.CacheTTL
}

// Fetch returns the review feed. Order of preference: redis cache, the
// upstream API, the canned fallback. An upstream failure never surfaces as
// an error; the page always has something to show.
func (s *Service) Fetch(ctx context.Context) Feed {
	if !s.configured() {
		return assemble(fallbackReviews, "fallback")
	}
	if cached, ok := s.cached(ctx); ok {
		return cached
	}
	feed, err := s.fetchUpstream(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("review feed fetch failed, serving fallback")
		return assemble(fallbackReviews, "fallback")
	}
	s.store(ctx, feed)
	return feed
}

func (s *Service) cached(ctx context.Context) (Feed, bool) {
	if s.Redis == nil {
		return Feed{}, false
	}
	raw, err := s.Redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return Feed{}, false
	}
	var feed Feed
	if err := json.Unmarshal(raw, &feed); err != nil {
		return Feed{}, false
	}
	feed.Source = "cache"
	return feed, true
}

func (s *Service) store(ctx context.Context, feed Feed) {
	if s.Redis == nil {
		return
	}
	raw, err := json.Marshal(feed)
	if err != nil {
		return
	}
	_ = s.Redis.Set(ctx, cacheKey, raw, s.cacheTTL()).Err()
}

// upstreamReview mirrors the business-profile API's review shape.
type upstreamReview struct {
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName     string `json:"displayName"`
		ProfilePhotoURL string `json:"profilePhotoUrl"`
	} `json:"reviewer"`
	StarRating string `json:"starRating"`
	Comment    string `json:"comment"`
	CreateTime string `json:"createTime"`
}

func (s *Service) fetchUpstream(ctx context.Context) (Feed, error) {
	url := fmt.Sprintf("%s/v4/%s/reviews?key=%s&pageSize=50", strings.TrimRight(s.BaseURL, "/"), s.Location, s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Feed{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return Feed{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Feed{}, fmt.Errorf("reviews: upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Feed{}, err
	}
	var payload struct {
		Reviews []upstreamReview `json:"reviews"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Feed{}, err
	}
	if len(payload.Reviews) == 0 {
		return Feed{}, errors.New("reviews: empty feed")
	}
	out := make([]Review, 0, len(payload.Reviews))
	for _, r := range payload.Reviews {
		out = append(out, Review{
			ID:       r.ReviewID,
			Name:     r.Reviewer.DisplayName,
			Date:     reviewDate(r.CreateTime),
			Rating:   starRating(r.StarRating),
			Review:   r.Comment,
			Verified: true,
			Photo:    r.Reviewer.ProfilePhotoURL,
		})
	}
	return assemble(out, "live"), nil
}

func assemble(reviews []Review, source string) Feed {
	total := len(reviews)
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := 0.0
	if total > 0 {
		avg = float64(sum) / float64(total)
	}
	return Feed{Reviews: reviews, AverageRating: avg, TotalReviews: total, Source: source}
}

func starRating(s string) int {
	switch s {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	}
	return 5
}

func reviewDate(createTime string) string {
	if ts, err := time.Parse(time.RFC3339, createTime); err == nil {
		return ts.Format("2006-01-02")
	}
	return createTime
}
