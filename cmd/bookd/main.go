package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotwise/bookd/internal/auth"
	"github.com/slotwise/bookd/internal/config"
	"github.com/slotwise/bookd/internal/db"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/events"
	"github.com/slotwise/bookd/internal/handlers"
	"github.com/slotwise/bookd/internal/httpx"
	"github.com/slotwise/bookd/internal/kafkax"
	"github.com/slotwise/bookd/internal/notify"
	"github.com/slotwise/bookd/internal/otelx"
	"github.com/slotwise/bookd/internal/reminder"
	"github.com/slotwise/bookd/internal/runtime"
	"github.com/slotwise/bookd/internal/storage"
	"github.com/slotwise/bookd/internal/storage/memory"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "bookd")
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

	var sender notify.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     host,
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("SMTP_FROM", ""),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
		})
	}

	brokers := config.String("KAFKA_BROKERS", "")
	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)

	// Without DATABASE_URL the service runs on the in-memory store: no
	// outbox publisher and no reminder worker, suitable for local dev only.
	var store engine.Store
	var readyChecks []runtime.ReadyCheck
	var pool *db.Pool
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err = db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}

		outboxRepo := events.NewRepository(pool)
		store = storage.New(pool, outboxRepo)
		readyChecks = append(readyChecks,
			runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
			runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		)

		publisher := events.NewPublisher(pool, outboxRepo, logger, events.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
		})
		go publisher.Run(ctx)

		worker := reminder.NewWorker(pool, reminder.NewRepository(), outboxRepo,
			notify.New(pool, sender, logger), logger, reminder.WorkerConfig{
				Interval:  config.Duration("REMINDER_POLL_INTERVAL", 15*time.Second),
				BatchSize: config.Int("REMINDER_BATCH_SIZE", 50),
				Backoff:   config.Duration("REMINDER_RETRY_BACKOFF", time.Minute),
			})
		go worker.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		store = memory.New()
	}

	eng := engine.New(store, logger,
		engine.WithNotifier(notify.New(pool, sender, logger)),
		engine.WithReminderOffsets(offsets),
	)

	booking := handlers.NewBookingHandler(eng, logger)
	resources := handlers.NewResourceHandler(eng, logger)
	services := handlers.NewServiceHandler(eng, logger)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/appointments", booking.Appointments)
	api.HandleFunc("/api/v1/appointments/cancel", booking.Cancel)
	api.HandleFunc("/api/v1/appointments/transition", booking.Transition)
	api.HandleFunc("/api/v1/slots", booking.Slots)
	api.HandleFunc("/api/v1/resources", resources.List)
	api.HandleFunc("/api/v1/resources/equipment", resources.RegisterEquipment)
	api.HandleFunc("/api/v1/resources/personnel", resources.RegisterPersonnel)
	api.HandleFunc("/api/v1/resources/status", resources.SetStatus)
	api.HandleFunc("/api/v1/services", services.Services)
	api.HandleFunc("/api/v1/services/status", services.SetStatus)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/", auth.Middleware(config.String("JWT_SECRET", ""))(api))

	rateLimit := rateLimitMiddleware(logger)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rateLimit,
	)
	handler = otelhttp.NewHandler(handler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

// rateLimitMiddleware prefers the shared Redis fixed window when REDIS_ADDR
// is configured, falling back to the per-process limiter otherwise.
func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_REQUESTS", 120)
	window := config.Duration("RATE_LIMIT_WINDOW", time.Minute)

	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, limit, window, "bookd:rl")
		return limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	return httpx.NewRateLimiter(limit, window).Middleware()
}
