package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/warmtransfer"
	"github.com/aretw0/warmtransfer/internal/config"
	"github.com/aretw0/warmtransfer/internal/logging"
	"github.com/aretw0/warmtransfer/pkg/adapters/livekit"
	"github.com/aretw0/warmtransfer/pkg/adapters/memory"
	"github.com/aretw0/warmtransfer/pkg/adapters/openai"
	"github.com/aretw0/warmtransfer/pkg/adapters/redis"
	"github.com/aretw0/warmtransfer/pkg/adapters/twilio"
	"github.com/aretw0/warmtransfer/pkg/contextbuf"
	"github.com/aretw0/warmtransfer/pkg/contextbuf/middleware"
	"github.com/aretw0/warmtransfer/pkg/domain"
	"github.com/aretw0/warmtransfer/pkg/observability"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/aretw0/warmtransfer/pkg/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// redisIdleTTL bounds how long an abandoned session's transcript stays in Redis.
const redisIdleTTL = 24 * time.Hour

// app bundles everything a server command needs.
type app struct {
	cfg      *config.App
	logger   *slog.Logger
	svc      *warmtransfer.Service
	registry *prometheus.Registry
	bridge   *twilio.Bridge
	closers  []io.Closer
}

func (a *app) Close() {
	a.svc.Close()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("Close failed", "err", err)
		}
	}
}

func loadApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load[config.App]("WARM", envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithFormat(logOut, level, logging.Format(cfg.LogFormat))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rooms, tokens, err := mediaProviders(cfg, envFile, logger)
	if err != nil {
		return nil, err
	}
	gen, err := textGenerator(envFile, logger)
	if err != nil {
		return nil, err
	}

	opts := []warmtransfer.Option{
		warmtransfer.WithLogger(logger),
		warmtransfer.WithRetention(cfg.ContextRetention),
		warmtransfer.WithTransferTTL(cfg.TransferTTL),
		warmtransfer.WithSweepInterval(cfg.SweepInterval),
		warmtransfer.WithNotifyBuffer(cfg.NotifyBuffer),
		warmtransfer.WithSummaryTimeout(cfg.SummaryTimeout),
		warmtransfer.WithMetrics(observability.NewMetrics(a.registry)),
		warmtransfer.WithSummaryOptions(
			summary.WithMaxUtterances(cfg.SummaryMaxUtterances),
			summary.WithMaxChars(cfg.SummaryMaxChars),
			summary.WithTimeout(cfg.SummaryTimeout),
		),
	}

	var buffer contextbuf.Store = contextbuf.NewMemory(contextbuf.WithRetention(cfg.ContextRetention))
	if cfg.RedisAddr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: redis %s: %v", domain.ErrGateway, cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, client)
		buffer = redis.NewFromClient(client,
			redis.WithPrefix(cfg.RedisPrefix),
			redis.WithRetention(cfg.ContextRetention),
			redis.WithTTL(redisIdleTTL),
		)
		if cfg.RedisLocking {
			opts = append(opts, warmtransfer.WithLocker(redis.NewLocker(client, cfg.RedisPrefix)))
		}
		logger.Info("Using redis", "addr", cfg.RedisAddr, "locking", cfg.RedisLocking)
	}
	mws, err := bufferMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, warmtransfer.WithBuffer(middleware.Chain(buffer, mws...)))

	a.svc = warmtransfer.New(rooms, tokens, gen, opts...)

	if cfg.TelephonyEnabled {
		tcfg, err := config.Load[twilio.Config]("", envFile)
		if err != nil {
			return nil, err
		}
		if client := twilio.NewClient(*tcfg); client.Enabled() {
			a.bridge = twilio.NewBridge(client, client.From(), tcfg.WebhookURL)
		} else {
			logger.Warn("Twilio credentials not found. Phone integration disabled.")
		}
	}
	return a, nil
}

func mediaProviders(cfg *config.App, envFile string, logger *slog.Logger) (ports.RoomProvider, ports.TokenIssuer, error) {
	if cfg.RoomProvider == "memory" {
		logger.Warn("Using in-memory rooms; tokens are not valid for a media server")
		return memory.NewRooms(), &memory.Tokens{}, nil
	}
	lk, err := config.Load[livekit.Config]("", envFile)
	if err != nil {
		return nil, nil, err
	}
	if !lk.Configured() {
		return nil, nil, fmt.Errorf("%w: LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required (or set WARM_ROOM_PROVIDER=memory)", domain.ErrInvalidArgument)
	}
	return livekit.NewRoomService(*lk), livekit.NewTokenIssuer(*lk), nil
}

// textGenerator falls back to a generator that always fails, so transfers still
// proceed with the degraded summary when no API key is configured.
func textGenerator(envFile string, logger *slog.Logger) (ports.TextGenerator, error) {
	ocfg, err := config.Load[openai.Config]("", envFile)
	if err != nil {
		return nil, err
	}
	if ocfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; summaries will be unavailable")
		return ports.TextGeneratorFunc(func(context.Context, string, string, int, float64) (string, error) {
			return "", fmt.Errorf("%w: OPENAI_API_KEY not configured", domain.ErrGateway)
		}), nil
	}
	return openai.New(*ocfg)
}

// bufferMiddleware redacts before it seals, so masked spans never reach storage.
func bufferMiddleware(cfg *config.App) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactPatterns) > 0 {
		mw, err := middleware.NewRedaction(cfg.RedactPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.ContextKey == "" {
		return mws, nil
	}
	active, err := middleware.ParseKey(cfg.ContextKey)
	if err != nil {
		return nil, fmt.Errorf("WARM_CONTEXT_KEY: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.ContextFallbackKeys {
		key, err := middleware.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("WARM_CONTEXT_FALLBACK_KEYS: %w", err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryption(enc)
	if err != nil {
		return nil, err
	}
	return append(mws, mw), nil
}
