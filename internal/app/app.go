package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/roseila-storefront/internal/admin"
	"github.com/xenking/roseila-storefront/internal/domain/order"
	"github.com/xenking/roseila-storefront/internal/domain/product"
	"github.com/xenking/roseila-storefront/internal/events"
	"github.com/xenking/roseila-storefront/internal/handler"
	"github.com/xenking/roseila-storefront/internal/identity/local"
	"github.com/xenking/roseila-storefront/internal/payment"
	"github.com/xenking/roseila-storefront/internal/payment/stripe"
	"github.com/xenking/roseila-storefront/internal/pricing"
	"github.com/xenking/roseila-storefront/internal/storage/mongo"
	"github.com/xenking/roseila-storefront/internal/storage/postgres"
	"github.com/xenking/roseila-storefront/internal/storage/rediscache"
	"github.com/xenking/roseila-storefront/internal/storefront"
	"github.com/xenking/roseila-storefront/pkg/health"
	"github.com/xenking/roseila-storefront/pkg/httpmiddleware"
)

// maxClients fails liveness when the registry grows past it.
const maxClients = 50_000

// gateway creates and confirms payment intents.
type gateway interface {
	payment.Gateway
	payment.Confirmer
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shipping, err := cfg.Shipping.rule()
	if err != nil {
		return errors.Wrap(err, "shipping rule")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// MongoDB users collection.
	mongoClient, err := mongo.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		return errors.Wrap(err, "connect mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	users := mongo.NewUserRepository(mongoClient.Database(cfg.Mongo.Database))
	if err := users.EnsureIndexes(ctx); err != nil {
		return errors.Wrap(err, "ensure user indexes")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool.Ping))
	healthSvc.AddReadinessCheck("mongo", 5*time.Second, health.PingCheck("mongo", func(ctx context.Context) error {
		return mongoClient.Ping(ctx, nil)
	}))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	var products product.AdminRepository = postgres.NewProductRepository(pool)
	if cfg.Redis.URL != "" {
		rdb, err := rediscache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		products = rediscache.NewCachedCatalog(products, rdb, cfg.Redis.TTL, lg.Named("catalog"))
		lg.Info("Catalog cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}
	orderRepo := postgres.NewOrderRepository(pool)
	credentials := postgres.NewCredentialRepository(pool)

	// Order events.
	var publisher events.Publisher = events.NewLogPublisher(lg.Named("events"))
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		publisher = kp
		lg.Info("Publishing order events to kafka", zap.String("topic", cfg.Kafka.Topic))
	}

	// Payments.
	var gw gateway = payment.NewSandbox()
	if cfg.Stripe.SecretKey != "" {
		gw = stripe.New(cfg.Stripe.SecretKey, cfg.Stripe.ReturnURL)
	} else {
		lg.Warn("No Stripe key configured, using sandbox payments")
	}
	intentService := payment.NewIntentService(gw, cfg.Payment.Currency)
	var intents payment.IntentCreator = intentService
	if cfg.Payment.Endpoint != "" {
		intents = payment.NewClient(cfg.Payment.Endpoint, cfg.Payment.Timeout, otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		))
	}

	// Domain services.
	identity := local.New(credentials, local.Config{
		TokenSecret:  []byte(cfg.Auth.TokenSecret),
		TokenTTL:     cfg.Auth.TokenTTL,
		SocialSecret: []byte(cfg.Auth.SocialSecret),
		SocialIssuer: cfg.Auth.SocialIssuer,
		Issuer:       "roseila-storefront",
	})
	orderService := order.NewService(orderRepo, shipping, publisher, lg.Named("orders"))
	registry := storefront.NewRegistry(storefront.Deps{
		Products:          products,
		Identity:          identity,
		Profiles:          users,
		State:             users,
		Intents:           intents,
		Confirmer:         gw,
		Orders:            orderService,
		Shipping:          shipping,
		Events:            publisher,
		Meter:             m.MeterProvider(),
		Logger:            lg.Named("storefront"),
		ConfirmationDelay: cfg.Checkout.ConfirmationDelay,
	}, cfg.Sessions.IdleTTL)
	healthSvc.AddLivenessCheck("clients", time.Second, health.GaugeCheck("clients", registry.Len, maxClients))

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Clients:  registry,
		Products: products,
		Admin:    admin.NewService(products, orderService, users, lg.Named("admin")),
		Intents:  payment.NewIntentHandler(intentService),
		Health:   healthSvc,
	})
	router := h.Routes()
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(gctx)
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func (c ShippingConfig) rule() (pricing.ShippingRule, error) {
	fee, err := decimal.NewFromString(c.FlatFee)
	if err != nil {
		return pricing.ShippingRule{}, errors.Wrap(err, "flat fee")
	}
	threshold, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return pricing.ShippingRule{}, errors.Wrap(err, "free threshold")
	}
	return pricing.ShippingRule{FlatFee: fee, FreeThreshold: threshold}, nil
}
