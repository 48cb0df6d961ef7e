package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/mediahub/pkg/api"
	"github.com/platinummonkey/mediahub/pkg/async"
	"github.com/platinummonkey/mediahub/pkg/audit"
	"github.com/platinummonkey/mediahub/pkg/auth"
	"github.com/platinummonkey/mediahub/pkg/billing"
	"github.com/platinummonkey/mediahub/pkg/config"
	"github.com/platinummonkey/mediahub/pkg/media"
	"github.com/platinummonkey/mediahub/pkg/middleware"
	"github.com/platinummonkey/mediahub/pkg/observability"
	"github.com/platinummonkey/mediahub/pkg/storage/memory"
	"github.com/platinummonkey/mediahub/pkg/storage/postgres"
	"github.com/platinummonkey/mediahub/pkg/storage/redisstore"
	"github.com/platinummonkey/mediahub/pkg/storage/s3store"
	"github.com/platinummonkey/mediahub/pkg/teams"
)

var version = "dev"

// backend is everything the services need from the primary store
type backend interface {
	teams.Store
	teams.MemberStore
	auth.TokenStore
	auth.UserStore
	auth.CodeStore
	media.Store
	billing.Ledger
}

func main() {
	migrate := flag.Bool("migrate", true, "Apply the database schema on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, logger, *migrate); err != nil {
		logger.WithError(err).Error("mediahub exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, migrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	var (
		store   backend
		db      *sql.DB
		cm      *postgres.ConnectionManager
		redisDB *redis.Client
	)

	if cfg.Database.URL != "" {
		connCfg := postgres.DefaultConnectionConfig(cfg.Database.URL)
		connCfg.ReplicaURLs = postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs)
		connCfg.MaxConns = cfg.Database.MaxConns
		connCfg.MinConns = cfg.Database.MinConns
		connCfg.Timeout = cfg.Database.Timeout

		cm, err = postgres.NewConnectionManager(ctx, connCfg, logger)
		if err != nil {
			return err
		}
		db = cm.Primary()
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		cm.MonitorReplicas(ctx, 30*time.Second)
		store = postgres.NewStore(db).WithReplicas(cm)
		logger.Info("Using PostgreSQL store")
	} else {
		store = memory.New()
		logger.Warn("MEDIAHUB_DATABASE_URL is empty; using the in-memory store")
	}

	if cfg.Redis.URL != "" {
		redisDB, err = redisstore.NewClient(ctx, redisstore.ClientConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		logger.Info("Connected to Redis")
	}

	var objects media.ObjectStore
	var s3 *s3store.ObjectStore
	if cfg.S3.Bucket != "" {
		s3, err = s3store.New(ctx, s3store.Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return err
		}
		objects = s3
	} else {
		objects = memory.NewObjectStore()
		logger.Warn("MEDIA_BUCKET is empty; presigned URLs point at an in-memory object store")
	}

	runner := async.NewRunner(logger, 30*time.Second)

	// audit
	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if db != nil {
		dbSink, err := audit.NewDBSink(ctx, db)
		if err != nil {
			return err
		}
		sinks = append(sinks, dbSink)
	}
	recorder := audit.NewRecorder(audit.NewMultiSink(sinks...), runner)

	// entitlements
	quota := teams.DefaultQuotaConfig()
	quota.AllowedContentTypes = cfg.Media.AllowedContentTypes
	quota.MaxUploadBytes = cfg.Media.MaxUploadBytes
	gate := teams.NewQuotaGate(store, quota)

	issuer := auth.NewIssuer(store, auth.DefaultIssuerConfig())
	prices := teams.NewPriceTable(map[teams.Plan]string{
		teams.PlanPlus: cfg.Stripe.PricePlus,
		teams.PlanPro:  cfg.Stripe.PricePro,
	})

	var ledger billing.Ledger = store
	if redisDB != nil && db == nil {
		ledger = redisstore.NewLedger(redisDB, "mediahub:billing:event", 30*24*time.Hour)
	}

	deps := api.Deps{
		Teams:     teams.NewService(store, store, issuer),
		Media:     media.NewService(store, objects, gate, store, media.Config{UploadURLTTL: cfg.Media.UploadURLTTL, DownloadURLTTL: cfg.Media.DownloadURLTTL}),
		Issuer:    issuer,
		Resolver:  auth.NewResolver(store, store),
		MagicLink: auth.NewMagicLink(store, store, auth.NewLogMailer(logger), runner),
		Repairer:  teams.NewRepairer(store, store, cfg.Repair.Concurrency),
		Recorder:  recorder,
		Logger:    logger,
		SetupKey:  cfg.App.SetupKey,
	}
	deps.AllowedOrigins = cfg.Server.AllowedOrigins
	deps.MaxBodyBytes = cfg.Server.MaxBodyBytes

	if cfg.Stripe.SecretKey != "" {
		provider := billing.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)
		appURL := strings.TrimRight(cfg.App.URL, "/")
		deps.Billing = billing.NewService(provider, prices, billing.ServiceConfig{
			SuccessURL:      appURL + "/team?checkout=success",
			CancelURL:       appURL + "/team?checkout=cancelled",
			PortalReturnURL: appURL + "/team",
		})
		deps.Reconciler, err = billing.NewReconciler(provider, provider, store, ledger, prices, 0)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("STRIPE_SECRET_KEY is empty; billing routes answer 503")
	}

	health := observability.NewHealthChecker(db, redisDB, version)
	if s3 != nil {
		health.AddDependency("s3", s3)
	}
	deps.Health = health

	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		deps.Registry = registry
		deps.Metrics = observability.NewMetrics(registry)
	}

	if redisDB != nil {
		deps.SignInLimiter = sharedLimiter(redisDB, "signin", middleware.SignInRateLimitConfig(), logger)
		deps.WebhookLimiter = sharedLimiter(redisDB, "webhook", middleware.WebhookRateLimitConfig(), logger)
	}

	server := api.NewServer(deps)

	if path := os.Getenv("MEDIAHUB_CONFIG_FILE"); path != "" {
		go func() {
			defer observability.RecoverPanic(logger, "config watcher")
			if err := config.Watch(ctx, path, logger, config.ApplyLogLevel(logger)); err != nil {
				logger.WithError(err).Warn("Config watcher stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("background tasks", runner.Shutdown)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if cm != nil {
		shutdown.Register("postgres", func(context.Context) error { return cm.Close() })
	}
	if redisDB != nil {
		shutdown.Register("redis", func(context.Context) error { return redisDB.Close() })
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("Starting mediahub")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- shutdown.WaitForShutdown() }()

	select {
	case err := <-serveErr:
		return err
	case err := <-shutdownErr:
		cancel()
		return err
	}
}

// sharedLimiter counts in Redis so limits hold across instances, falling back to a
// per-process bucket when Redis is unreachable
func sharedLimiter(client *redis.Client, name string, rl middleware.RateLimitConfig, logger *observability.Logger) middleware.Limiter {
	window := redisstore.NewWindowLimiter(client, "mediahub:ratelimit:"+name, rl.RequestsPerWindow, rl.WindowDuration)
	return middleware.NewFallbackLimiter(window, middleware.NewLocalLimiter(rl), logger.WithField("limiter", name))
}
