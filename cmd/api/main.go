package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/smatracka/hotdrop/internal/app"
	"github.com/smatracka/hotdrop/internal/clock"
	"github.com/smatracka/hotdrop/internal/config"
	"github.com/smatracka/hotdrop/internal/ratelimit"
	"github.com/smatracka/hotdrop/internal/storage/postgres"
	"github.com/smatracka/hotdrop/internal/storage/rediscache"
	"github.com/smatracka/hotdrop/internal/tasks"
	transporthttp "github.com/smatracka/hotdrop/internal/transport/http"
	"github.com/smatracka/hotdrop/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.Default()

	cfg, err := config.Load(logger)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	var limiter ratelimit.Limiter
	limiter, err = ratelimit.NewRedisLimiter(redisClient)
	if err != nil {
		logger.Printf("WARN: redis limiter unavailable, using in-memory counters: %v", err)
		limiter = ratelimit.NewMemoryLimiter()
	}

	cache := rediscache.New(redisClient)
	sysClock := clock.NewSystem()

	queueRepo := postgres.NewQueueRepository(pool)
	queueSvc := app.NewQueueService(queueRepo, sysClock, app.WithSnapshotCache(cache))

	reservationRepo := postgres.NewReservationRepository(pool)
	reservationSvc := app.NewReservationService(reservationRepo, queueSvc, sysClock,
		app.WithReservationTTL(cfg.Reservation.TTL()),
		app.WithMaxLines(cfg.Reservation.MaxLines),
	)

	dropRepo := postgres.NewDropRepository(pool)
	warmSvc := app.NewWarmService(dropRepo, queueRepo, cache, sysClock, app.WarmTTLs{
		Imminent:  time.Duration(cfg.Warmer.TTLImminentSeconds) * time.Second,
		Live:      time.Duration(cfg.Warmer.TTLLiveSeconds) * time.Second,
		Upcoming:  time.Duration(cfg.Warmer.TTLUpcomingSeconds) * time.Second,
		Published: time.Duration(cfg.Warmer.TTLPublishedSeconds) * time.Second,
	})

	enqueuer := tasks.NewEnqueuer(cfg.RedisAddr)
	defer enqueuer.Close()

	taskHandler := tasks.NewHandler(warmSvc, reservationSvc, enqueuer, logger, cfg.Reservation.SweepBatchSize)
	stopWorker := tasks.StartWorker(cfg.RedisAddr, cfg.Warmer.Concurrency, taskHandler, logger)
	defer stopWorker()

	scanInterval := time.Duration(cfg.Warmer.ScanIntervalMinutes) * time.Minute
	sweepInterval := time.Duration(cfg.Reservation.SweepIntervalSeconds) * time.Second
	stopScheduler, err := tasks.StartScheduler(cfg.RedisAddr, scanInterval, sweepInterval, logger)
	if err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer stopScheduler()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/drops/", transporthttp.HandleDrops(queueSvc, reservationSvc))
	mux.Handle("/cart-reservations/", transporthttp.HandleReservations(reservationSvc))
	mux.Handle("/admin/", transporthttp.HandleAdmin(dropRepo, enqueuer))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(
		transporthttp.CORS(cfg.CORSOrigins,
			transporthttp.RateLimit(limiter, cfg.RateLimit, logger, mux)),
		logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	log.Printf("api listening on :%s", cfg.Port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("server stopped")
}
