package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/starrysand/api/internal/catalog"
	"github.com/starrysand/api/internal/handlers"
	"github.com/starrysand/api/internal/platform/config"
	"github.com/starrysand/api/internal/platform/idempotency"
	"github.com/starrysand/api/internal/platform/observability"
	"github.com/starrysand/api/internal/services"
)

const serviceName = "starrysand-api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(serviceName, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	productCatalog, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		logger.Fatal("failed to load catalog", zap.String("file", cfg.Catalog.File), zap.Error(err))
	}
	if cfg.Catalog.SiteBusy != nil {
		productCatalog = productCatalog.WithSiteBusy(*cfg.Catalog.SiteBusy)
	}
	logger.Info("catalog loaded",
		zap.Int("sizes", len(productCatalog.Sizes())),
		zap.Int("discount_codes", productCatalog.Discounts().Len()),
		zap.Bool("site_busy", productCatalog.Status().Busy),
	)

	orderSessions, err := services.NewOrderSessionService(services.OrderSessionServiceDeps{
		Catalog:          productCatalog,
		Discounts:        productCatalog.Discounts(),
		Logger:           logger,
		Meter:            otel.Meter(serviceName),
		TTL:              cfg.Sessions.TTL,
		MaxSessions:      cfg.Sessions.MaxSessions,
		DisableDiscounts: !cfg.Features.EnableDiscounts,
	})
	if err != nil {
		logger.Fatal("failed to initialise order session service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewMemoryStore(idempotency.WithCapacity(cfg.Idempotency.Capacity))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithMethods(http.MethodPost, http.MethodPut, http.MethodDelete),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
		idempotency.WithOptionalKey(),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(ctx)
	var backgroundWG sync.WaitGroup

	runPeriodic(backgroundCtx, &backgroundWG, cfg.Idempotency.CleanupInterval, func(now time.Time) {
		runCtx, cancel := context.WithTimeout(backgroundCtx, time.Minute)
		defer cancel()
		cleanupLogger := observability.FromContext(runCtx).Named("idempotency")
		removed := 0
		for runCtx.Err() == nil {
			n, err := idempotencyStore.CleanupExpired(runCtx, now, cfg.Idempotency.CleanupBatchSize)
			if err != nil {
				cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
				break
			}
			removed += n
			if n < cfg.Idempotency.CleanupBatchSize {
				break
			}
		}
		if removed > 0 {
			cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	})
	runPeriodic(backgroundCtx, &backgroundWG, cfg.Sessions.SweepInterval, func(now time.Time) {
		if removed := orderSessions.SweepExpired(backgroundCtx, now); removed > 0 {
			observability.FromContext(backgroundCtx).Named("order_sessions").Info("expired order sessions removed", zap.Int("count", removed))
		}
	})

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(cfg, startedAt)),
		handlers.WithReadinessCheck("catalog", func(context.Context) error {
			if len(productCatalog.Sizes()) == 0 {
				return errors.New("catalog has no sizes")
			}
			return nil
		}),
		handlers.WithReadinessCheck("order_sessions", func(context.Context) error {
			if orderSessions.Len() >= cfg.Sessions.MaxSessions {
				return fmt.Errorf("session registry full (%d)", orderSessions.Len())
			}
			return nil
		}),
	)

	catalogHandlers := handlers.NewCatalogHandlers(productCatalog)
	orderHandlers := handlers.NewOrderSessionHandlers(orderSessions,
		handlers.WithDiscountRateLimit(cfg.RateLimits.DiscountAttemptsPerMinute, time.Minute, nil),
		handlers.WithSessionMiddlewares(idempotencyMiddleware),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(observability.WithRequestMetrics(otel.Meter(serviceName))),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithPublicRoutes(catalogHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("starrysand api listening", zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown.Done()
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runPeriodic calls fn on every tick until ctx is cancelled.
func runPeriodic(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(time.Time)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case tick := <-ticker.C:
				fn(tick.UTC())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}
