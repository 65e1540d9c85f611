package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/threedeality/storefront-api/internal/app"
	"github.com/threedeality/storefront-api/internal/config"
	"github.com/threedeality/storefront-api/internal/notify"
	"github.com/threedeality/storefront-api/internal/obs"
	"github.com/threedeality/storefront-api/internal/resilience"
	"github.com/threedeality/storefront-api/internal/shipping"
	"github.com/threedeality/storefront-api/internal/shiprocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "storefront"), nil)

	redisOpt, err := app.TaskRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	outbound := func(target string) resilience.HTTPClient {
		return resilience.HTTPClient{
			Client:      &http.Client{Timeout: cfg.OutboundTimeout},
			Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget(target).WithLogger(logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitterPercent,
			Timeout:     cfg.OutboundTimeout,
			Target:      target,
			Logger:      &logger,
		}
	}

	platform := &shiprocket.Client{
		BaseURL:  cfg.ShiprocketBaseURL,
		Email:    cfg.ShiprocketEmail,
		Password: cfg.ShiprocketPassword,
		HTTP:     outbound("shiprocket"),
	}
	shippingSvc := &shipping.Service{
		Platform:  platform,
		Pickup:    cfg.ShiprocketPickup,
		ChannelID: cfg.ShiprocketChannelID,
		Logger:    logger,
	}

	var sender notify.EmailSender
	if cfg.ResendAPIKey != "" {
		sender = &notify.HTTPEmailSender{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.EmailFrom,
			HTTP:   outbound("resend"),
		}
	}
	mailWorker := &notify.Worker{Sender: sender}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 10),
		Logger:      asynqLogger{logger},
	})

	mux := app.NewTaskMux(shippingSvc, mailWorker)

	logger.Info().Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger adapts zerolog to asynq's logging interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
