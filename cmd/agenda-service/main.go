package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/finance"
	"github.com/ruanmelo/navalha/internal/handlers"
	"github.com/ruanmelo/navalha/internal/notify"
	"github.com/ruanmelo/navalha/internal/outbox"
	"github.com/ruanmelo/navalha/internal/scheduling"
	"github.com/ruanmelo/navalha/internal/sms"
	"github.com/ruanmelo/navalha/libs/config"
	"github.com/ruanmelo/navalha/libs/db"
	"github.com/ruanmelo/navalha/libs/httpx"
	"github.com/ruanmelo/navalha/libs/kafkax"
	otelx "github.com/ruanmelo/navalha/libs/otel"
	"github.com/ruanmelo/navalha/libs/runtime"
)

func buildSender(logger *slog.Logger) sms.Sender {
	switch provider := config.String("SMS_PROVIDER", ""); provider {
	case "webhook":
		url := config.String("SMS_WEBHOOK_URL", "")
		if url == "" {
			logger.Warn("SMS_PROVIDER=webhook but SMS_WEBHOOK_URL is empty; notifications disabled")
			return nil
		}
		return sms.NewWebhookSender(url, config.String("SMS_WEBHOOK_TOKEN", ""))
	case "noop":
		return sms.NewNoopSender()
	case "":
		return nil
	default:
		logger.Warn("unknown sms provider; notifications disabled", "provider", provider)
		return nil
	}
}

func buildRateLimit(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT", 120)
	window := config.Duration("RATE_LIMIT_WINDOW", time.Minute)

	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		logger.Info("using redis rate limiter", "addr", addr)
		return httpx.NewRedisRateLimiter(rdb, limit, window, "agenda").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, window).Middleware()
}

func main() {
	service := config.String("SERVICE_NAME", "agenda-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var (
		dir         directory.Directory
		readyChecks []runtime.ReadyCheck
	)
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		dir = directory.NewPostgres(pool)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		brokers := config.String("KAFKA_BROKERS", "")
		if brokers != "" {
			readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
		publisher := outbox.NewPublisher(pool, outbox.NewRepository(pool), logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory directory (state is lost on restart)")
		dir = directory.NewMemory()
	}

	var notifier scheduling.Notifier
	if sender := buildSender(logger); sender != nil {
		notifier = notify.NewDispatcher(sender, config.Duration("SMS_SEND_TIMEOUT", 5*time.Second), logger)
	}

	scheduler := scheduling.NewScheduler(dir, logger)
	machine := scheduling.NewStatusMachine(dir, notifier, logger)
	aggregator := finance.NewAggregator(dir, config.Bool("FINANCE_INCLUDE_CANCELLED", true))

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.New(dir, scheduler, machine, aggregator, logger).Register(mux)

	var corsOrigins []string
	if raw := config.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		corsOrigins = strings.Split(raw, ",")
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		httpx.WithBodyLimit(1<<20),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         10 * time.Minute,
		}),
		buildRateLimit(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "agenda")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
