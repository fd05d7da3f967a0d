package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"techcare/internal/api"
	"techcare/internal/config"
	"techcare/internal/database"
	"techcare/internal/domain"
	"techcare/internal/email"
	"techcare/internal/events"
	"techcare/internal/logging"
	"techcare/internal/metrics"
	"techcare/internal/models"
	"techcare/internal/payment"
	"techcare/internal/repository"
	"techcare/internal/service"
	"techcare/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	rewards, err := config.LoadRewards(cfg.Loyalty.RewardsPath)
	if err != nil {
		logger.Error().Err(err).Str("rewards_path", cfg.Loyalty.RewardsPath).Msg("load rewards")
		return err
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	memoryGuard := repository.NewMemoryGuard()
	var guard domain.Guard = memoryGuard
	if redisClient != nil {
		guard = repository.NewFailoverGuard(repository.NewRedisGuard(redisClient), memoryGuard,
			logging.Component(logger, "guard"))
	}
	go sweepGuard(ctx, memoryGuard)

	emails, err := startEmailWorker(ctx, cfg, db, redisClient, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(logging.Component(logger, "events"))
	svc := buildServices(cfg, db, guard, bus, emails, rewards, logger)

	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	httpServer := api.NewServer(cfg, svc, db, logging.Component(logger, "http"))
	go httpServer.RunMaintenance(ctx)

	return serve(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-memory throttles and queue")
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		// The failover guard keeps working once Redis comes back.
		logger.Warn().Err(err).Msg("redis connection failed, starting in degraded mode")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func startEmailWorker(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (domain.EmailQueue, error) {
	if !cfg.Worker.Enabled {
		logger.Warn().Msg("email worker disabled, notification emails will not be sent")
		return nil, nil
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("init email templates: %w", err)
	}
	sender := email.NewSender(cfg.Email, logging.Component(logger, "email"))
	w := worker.NewEmailWorker(db, sender, renderer, redisClient, cfg.Worker, logging.Component(logger, "email-worker"))
	go w.Start(ctx)
	return w, nil
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	guard domain.Guard,
	bus *events.EventBus,
	emails domain.EmailQueue,
	rewards []models.Reward,
	logger *zerolog.Logger,
) api.Services {
	svcLogger := logging.Component(logger, "service")
	gateway := payment.New(cfg.Payments, logging.Component(logger, "payments"))

	loyalty := service.NewLoyaltyService(db, bus, cfg.Loyalty, rewards, svcLogger)
	notifications := service.NewNotificationService(db, emails, cfg.Payments.Currency, cfg.App.PublicURL, svcLogger)
	notifications.Subscribe(bus)

	return api.Services{
		Accounts:      service.NewAccountService(db, loyalty, svcLogger),
		Technicians:   service.NewTechnicianService(db, svcLogger),
		Bookings:      service.NewBookingService(db, guard, bus, loyalty, cfg.Throttle, svcLogger),
		Bids:          service.NewBidService(db, guard, bus, cfg.Throttle, svcLogger),
		Reviews:       service.NewReviewService(db, guard, bus, cfg.Throttle, svcLogger),
		Loyalty:       loyalty,
		Notifications: notifications,
		Payments:      service.NewPaymentService(db, gateway, guard, bus, cfg.Payments.Currency, svcLogger),
	}
}

func sweepGuard(ctx context.Context, g *repository.MemoryGuard) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sweep()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.Server, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
