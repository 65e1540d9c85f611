package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/threedeality/storefront-api/internal/catalog"
	"github.com/threedeality/storefront-api/internal/checkout"
	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/common"
	"github.com/threedeality/storefront-api/internal/config"
	"github.com/threedeality/storefront-api/internal/health"
	"github.com/threedeality/storefront-api/internal/notify"
	"github.com/threedeality/storefront-api/internal/quote"
	"github.com/threedeality/storefront-api/internal/ratelimit"
	"github.com/threedeality/storefront-api/internal/resilience"
	"github.com/threedeality/storefront-api/internal/reviews"
	"github.com/threedeality/storefront-api/internal/session"
	"github.com/threedeality/storefront-api/internal/shipping"
	"github.com/threedeality/storefront-api/internal/shiprocket"
)

// Dependencies wires the proxy services and their handlers. Built once at
// startup and handed to the router.
type Dependencies struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Redis    *redis.Client
	Commerce *commerce.Client
	Tasks    *asynq.Client

	Checkout    *checkout.Handler
	Shipping    *shipping.Handler
	ShippingSvc *shipping.Service
	Session     *session.Handler
	SessionMW   session.Middleware
	Quote       *quote.Handler
	Catalog     *catalog.Handler
	Reviews     *reviews.Handler
	Contact     *notify.Handler
	Mailer      notify.EmailSender

	Idem         common.Idem
	QuoteLimit   ratelimit.Handler
	ContactLimit func(http.Handler) http.Handler
	Health       health.Handler
}

// Build constructs the full service graph from configuration. The redis
// client is shared across session bindings, caches, rate limits and
// idempotency keys; each upstream gets its own circuit breaker.
func Build(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client) (*Dependencies, error) {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	outbound := func(target string) resilience.HTTPClient {
		return resilience.HTTPClient{
			Client:      &http.Client{Timeout: cfg.OutboundTimeout, Transport: transport},
			Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget(target).WithLogger(logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.OutboundTimeout,
			Target:      target,
			Logger:      &logger,
		}
	}

	store := &commerce.Client{
		BaseURL:        cfg.MedusaBaseURL,
		PublishableKey: cfg.MedusaPublishableKey,
		HTTP:           outbound("commerce"),
	}

	platform := &shiprocket.Client{
		BaseURL:  cfg.ShiprocketBaseURL,
		Email:    cfg.ShiprocketEmail,
		Password: cfg.ShiprocketPassword,
		HTTP:     outbound("shiprocket"),
	}

	taskClient, err := NewTaskClient(cfg)
	if err != nil {
		return nil, err
	}

	validate := validator.New()

	tokens := session.Tokens{Secret: []byte(cfg.SessionSecret), TTL: cfg.SessionTTL}
	sessionSvc := &session.Service{
		Store:    session.Store{R: rdb, BindTTL: cfg.CartBindTTL},
		Client:   store,
		RegionID: cfg.DefaultRegionID,
	}

	shippingSvc := &shipping.Service{
		Platform:  platform,
		Pickup:    cfg.ShiprocketPickup,
		ChannelID: cfg.ShiprocketChannelID,
		Logger:    logger,
	}

	var mailer notify.EmailSender
	if cfg.ResendAPIKey != "" {
		mailer = &notify.HTTPEmailSender{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.EmailFrom,
			HTTP:   outbound("resend"),
		}
	}
	contactHandler := &notify.Handler{
		Queue:    taskClient,
		Inbox:    cfg.EmailAdmin,
		Validate: validate,
		Logger:   logger,
	}

	reviewsSvc := &reviews.Service{
		BaseURL:  cfg.ReviewsAPIBaseURL,
		Location: cfg.ReviewsLocation,
		APIKey:   cfg.ReviewsAPIKey,
		HTTP:     outbound("reviews"),
		Redis:    rdb,
		CacheTTL: cfg.ReviewsCacheTTL,
		Logger:   logger,
	}

	contactLimit, err := contactLimiter(cfg, rdb)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Redis:    rdb,
		Commerce: store,
		Tasks:    taskClient,

		Checkout: &checkout.Handler{Svc: &checkout.Service{
			Client:            store,
			Contract:          cfg.MedusaContract,
			DefaultProviderID: cfg.DefaultProviderID,
		}},
		Shipping: &shipping.Handler{
			Svc:    shippingSvc,
			Queue:  taskClient,
			Async:  cfg.ShippingAsync,
			Notify: contactHandler,
		},
		ShippingSvc: shippingSvc,
		Session:     &session.Handler{Svc: sessionSvc, Tokens: tokens, Validate: validate},
		SessionMW:   session.Middleware{Tokens: tokens},
		Quote:       &quote.Handler{},
		Catalog: &catalog.Handler{Svc: &catalog.Service{
			Client: store,
			Cache:  catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		}},
		Reviews: &reviews.Handler{Svc: reviewsSvc},
		Contact: contactHandler,
		Mailer:  mailer,

		Idem: common.Idem{R: rdb, TTL: cfg.IdempotencyTTL},
		QuoteLimit: ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: rdb},
			Config: ratelimit.Config{
				Key:    ratelimit.ClientIPKey("quote"),
				Window: cfg.QuoteRateLimitWindow,
				Max:    cfg.QuoteRateLimitMax,
			},
			OnError: func(err error) {
				logger.Warn().Err(err).Msg("quote rate limit check failed")
			},
		},
		ContactLimit: contactLimit,
		Health: health.Handler{
			Checker: ReadinessChecker{Commerce: store, Redis: rdb},
		},
	}
	return deps, nil
}

// NewTaskClient builds the asynq producer from the shared redis URL.
func NewTaskClient(cfg *config.Config) (*asynq.Client, error) {
	opt, err := TaskRedisOpt(cfg)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}

// TaskRedisOpt translates REDIS_URL into asynq's connection options. Both
// the API and the worker derive their queue connection from it.
func TaskRedisOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

// NewTaskMux registers the worker-side handlers for every queued task type.
func NewTaskMux(svc *shipping.Service, mailWorker *notify.Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(shipping.TypeSubmitOrder, svc.HandleSubmitOrder)
	mux.HandleFunc(notify.TypeSendEmail, mailWorker.HandleSendEmail)
	return mux
}

func contactLimiter(cfg *config.Config, rdb *redis.Client) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(cfg.ContactRateLimit)
	if err != nil {
		return nil, fmt.Errorf("parse CONTACT_RATE_LIMIT: %w", err)
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "limiter:contact"})
	if err != nil {
		return nil, fmt.Errorf("limiter store: %w", err)
	}
	mw := limiterstdlib.NewMiddleware(limiter.New(store, rate))
	return mw.Handler, nil
}

// ReadinessChecker probes the dependencies the proxy cannot serve without.
type ReadinessChecker struct {
	Commerce *commerce.Client
	Redis    *redis.Client
}

// PingCommerce issues a minimal store-API request. Any response from the
// backend, including auth errors, proves it is reachable; only transport
// failures and 5xx responses count against readiness.
func (c ReadinessChecker) PingCommerce(ctx context.Context, timeout time.Duration) error {
	if !c.Commerce.Ready() {
		return errors.New("commerce not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.Commerce.Do(ctx, http.MethodGet, "/store/products?limit=1", nil)
	if err != nil {
		return err
	}
	if resp.Status >= http.StatusInternalServerError {
		return fmt.Errorf("commerce returned %d", resp.Status)
	}
	return nil
}

func (c ReadinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Redis.Ping(ctx).Err()
}
