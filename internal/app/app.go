package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ethnicwear/storefront/internal/domain/address"
	"github.com/ethnicwear/storefront/internal/domain/auth"
	"github.com/ethnicwear/storefront/internal/domain/cart"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
	"github.com/ethnicwear/storefront/internal/domain/coupon"
	"github.com/ethnicwear/storefront/internal/domain/order"
	"github.com/ethnicwear/storefront/internal/handler"
	"github.com/ethnicwear/storefront/internal/storage/files"
	"github.com/ethnicwear/storefront/internal/storage/postgres"
	"github.com/ethnicwear/storefront/pkg/health"
	"github.com/ethnicwear/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(health.WithLogger(lg))
	apiHandler, err := newHandler(ctx, pool, cfg, healthSvc, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           apiHandler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHandler wires repositories, services and routes behind the middleware
// chain and registers health checks on healthSvc.
func newHandler(
	ctx context.Context,
	pool *pgxpool.Pool,
	cfg *Config,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}
	images := files.NewImages(cfg.UploadDir, cfg.MaxImageSize)

	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("uploads", time.Second, health.WritableDirCheck(images.Dir()))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	categoryRepo := postgres.NewCategoryRepository(pool)
	brandRepo := postgres.NewBrandRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	catalogService := catalog.NewService(productRepo, categoryRepo, brandRepo, images)
	cartService := cart.NewService(cartRepo, catalogService)
	couponService := coupon.NewService(couponRepo)
	addressService := address.NewService(addressRepo)
	orderService, err := order.NewService(orderRepo, cartService, addressService, couponService,
		order.WithMeterProvider(mp),
		order.WithTracerProvider(tp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	clientLimit := httpmiddleware.NewLimiter(httpmiddleware.LimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	customerLimit := httpmiddleware.NewLimiter(httpmiddleware.LimitConfig{
		Max:    cfg.CustomerLimit.Max,
		Window: cfg.CustomerLimit.Window,
	})
	go clientLimit.Run(ctx)
	go customerLimit.Run(ctx)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{
			PublicBaseURL:  cfg.PublicBaseURL,
			MaxUploadBytes: cfg.MaxUploadSize,
			APIKeyPepper:   []byte(cfg.APIKeyPepper),
		},
		handler.Deps{
			Catalog:   catalogService,
			Carts:     cartService,
			Coupons:   couponService,
			Addresses: addressService,
			Orders:    orderService,
			Tokens:    auth.NewTokens([]byte(cfg.JWT.Secret), cfg.JWT.Issuer),
			APIKeys:   apikeyRepo,

			CustomerLimit: customerLimit,
		},
	)

	// Router: health endpoints, uploaded images and API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Handle(files.URLPrefix+"*", http.StripPrefix(files.URLPrefix, http.FileServer(http.Dir(images.Dir()))))
	h.Register(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	return httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader, handler.IdempotencyKeyHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		clientLimit.Middleware(httpmiddleware.ClientIP),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront", routeFinder, tp, mp),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	), nil
}
