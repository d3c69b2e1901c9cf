package main

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/gcal"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "booking-service")
	port := must(config.Port("PORT", "8083"))
	grpcPort := must(config.Port("GRPC_PORT", "9093"))
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL := must(config.RequiredString("DATABASE_URL"))
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(must(config.Int("DB_MAX_CONNS", 0))),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository()
	store := storage.NewStore(pool, outboxRepo)

	google := gcal.NewClient(gcal.Config{
		ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
		QPS:          must(config.Float("GOOGLE_API_QPS", 10)),
		TokenTTL:     must(config.Duration("GOOGLE_TOKEN_TTL", 10*time.Minute)),
	}, store)

	source := busy.Multi{
		busy.NewGoogleSource(google),
		busy.NewCalDAVSource(store, nil),
	}
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() { _ = rdb.Close() }()
	}
	eng := newEngines(store, source, rdb,
		must(config.Duration("BUSY_CACHE_TTL", time.Minute)),
		must(config.Duration("BUSY_FETCH_TIMEOUT", 5*time.Second)),
		logger)
	var invalidator busyInvalidator
	if eng.cache != nil {
		invalidator = eng.cache
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: eng.cache.Ping})
	}

	meetings := meeting.NewService(meeting.NewGoogleMeet(google), zoomFromEnv(logger), logger)
	// Writers wait for a slot before taking a connection, leaving the rest of the pool to the
	// calendar token lookups and reads they depend on.
	bookings := booking.NewService(store, eng.gate, meetings, logger,
		booking.WithMaxConcurrentBookings(max(1, int(pool.Config().MaxConns)/2)))

	go outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	}).Run(ctx)

	if topic := config.String("KAFKA_CALENDAR_TOPIC", "calendar.busy.changed.v1"); topic != "" {
		go consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		}, newCalendarChangedHandler(invalidator, google, logger)).Run(ctx)
	}

	metrics.Register()
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", promhttp.Handler())
	handlers.Register(mux,
		handlers.NewAvailabilityHandler(eng.reads, config.String("DEFAULT_GUEST_TIMEZONE", "Asia/Tokyo"), logger),
		handlers.NewBookingHandler(bookings, logger),
		handlers.NewScheduleHandler(store, logger),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			ExposedHeaders: []string{"Idempotency-Replayed", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		rateLimit(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "booking"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	go grpcSrv.WatchReadiness(ctx, 5*time.Second, runtime.CombineChecks(checks...))
	go func() {
		if err := grpcSrv.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// zoomFromEnv returns nil unless all three Zoom credentials are set.
func zoomFromEnv(logger *slog.Logger) meeting.Conferencing {
	cfg := meeting.ZoomConfig{
		AccountID:    config.String("ZOOM_ACCOUNT_ID", ""),
		ClientID:     config.String("ZOOM_CLIENT_ID", ""),
		ClientSecret: config.String("ZOOM_CLIENT_SECRET", ""),
	}
	if cfg.AccountID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		logger.Info("zoom disabled")
		return nil
	}
	return meeting.NewZoom(cfg)
}

// rateLimit shares limits across replicas through Redis when RATE_LIMIT_REDIS_ADDR is set.
func rateLimit(logger *slog.Logger) httpx.Middleware {
	perMinute := must(config.Int("RATE_LIMIT_PER_MINUTE", 120))
	if perMinute <= 0 {
		return nil
	}
	addr := config.String("RATE_LIMIT_REDIS_ADDR", config.String("REDIS_ADDR", ""))
	if addr == "" {
		return httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "slotbook:rl").
		Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}
