package main

// @title Directorist Affiliate API
// @version 1.0
// @description Referral tracking, commissions and payouts for Directorist listings.

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/joho/godotenv"
	"github.com/jordanlanch/directorist-affiliate/config"
	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/api/handlers"
	custommw "github.com/jordanlanch/directorist-affiliate/pkg/api/middleware"
	"github.com/jordanlanch/directorist-affiliate/pkg/cache"
	"github.com/jordanlanch/directorist-affiliate/pkg/commission"
	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/email"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/export"
	"github.com/jordanlanch/directorist-affiliate/pkg/jobs"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/metrics"
	custommiddleware "github.com/jordanlanch/directorist-affiliate/pkg/middleware"
	"github.com/jordanlanch/directorist-affiliate/pkg/notification"
	"github.com/jordanlanch/directorist-affiliate/pkg/orders"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/jordanlanch/directorist-affiliate/pkg/secrets"
	"github.com/jordanlanch/directorist-affiliate/pkg/slack"
	"github.com/jordanlanch/directorist-affiliate/pkg/storage"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️  No .env file loaded")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)
	if cfg.FileError != nil {
		log.Printf("⚠️  Config file not applied: %v", cfg.FileError)
	}

	secretsCfg := secrets.ConfigFromEnv()
	secretsManager, err := secrets.NewManager(secretsCfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize secrets backend: %v", err)
	}
	creds, err := secrets.Load(context.Background(), secretsManager)
	if err != nil {
		log.Fatalf("❌ Failed to load secrets: %v", err)
	}
	creds.Overlay(cfg)
	log.Printf("🔐 Secrets loaded (backend: %s)", secretsCfg.Backend)

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}
	log.Printf("✅ Database ready (%s)", db.Driver())

	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Code lookups go through Redis when it is configured
	var (
		codes       domain.CodeFinder = db.Codes
		codeCache   *cache.CodeCache
		redisPinger handlers.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()

		codeCache = cache.NewCodeCache(redisClient, db.Codes, cache.DefaultCodeTTL, appLogger).WithObserver(prometheusMetrics)
		codes = codeCache
		redisPinger = redisClient
		log.Printf("✅ Redis code cache enabled")
	} else {
		log.Printf("ℹ️  Redis disabled (no REDIS_URL configured)")
	}

	// Notifications
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.SendGridAPIKey, appLogger)
	var slackService *slack.Service
	if cfg.SlackWebhookURL != "" {
		slackService = slack.NewService(slack.NewWebhookClient(cfg.SlackWebhookURL))
		log.Printf("✅ Slack notifications enabled")
	} else {
		log.Printf("ℹ️  Slack notifications disabled (no webhook URL configured)")
	}

	bus := events.NewBus(appLogger)
	bus.Subscribe(notification.NewNotifier(emailService, slackService, notification.Config{
		NotifyAdmin:    cfg.Program.NotifyAdmin,
		AdminEmail:     cfg.Program.AdminEmail,
		CurrencySymbol: cfg.Program.CurrencySymbol,
	}, appLogger))
	bus.Subscribe(prometheusMetrics)

	// Services
	trackingService := tracking.NewService(db, codes, bus, tracking.Config{
		Param:            cfg.Tracking.ReferralParam,
		CookieDays:       cfg.Tracking.CookieDays,
		DuplicateWindow:  cfg.Tracking.DuplicateWindow,
		RateLimitPerHour: cfg.Tracking.RateLimitPerHour,
		TokenSecret:      cfg.JWTSecret,
		TokenTTL:         cfg.Tracking.TokenTTL,
	}, appLogger).WithObserver(prometheusMetrics)

	affiliateService := affiliate.NewService(db, bus, affiliate.Config{
		SiteURL:       cfg.SiteURL,
		ReferralParam: cfg.Tracking.ReferralParam,
		PhoneRegion:   cfg.PhoneRegion,
	}, appLogger)
	if codeCache != nil {
		affiliateService.WithCodeInvalidator(codeCache)
	}

	conversionService := conversion.NewService(db, codes, productRates(cfg.ProductRates), bus, conversion.Config{
		DefaultRate:            decimal.NewNullDecimal(decimal.NewFromFloat(cfg.Program.DefaultCommissionRate)),
		ExpireCookieOnComplete: cfg.Program.ExpireCookieOnComplete,
		MatchWindow:            time.Duration(cfg.Tracking.CookieDays) * 24 * time.Hour,
	}, appLogger)

	payoutService := payout.NewService(db, bus, appLogger)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize export storage: %v", err)
	}
	exportService := export.NewService(db, store, appLogger)

	dispatcher := orders.NewDispatcher(conversionService, appLogger)

	// Order events from Kafka
	if len(cfg.KafkaBrokers) > 0 {
		reader, err := orders.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.OrderEventsTopic)
		if err != nil {
			log.Fatalf("❌ Failed to create Kafka reader: %v", err)
		}
		consumer := orders.NewConsumer(reader, dispatcher, appLogger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				appLogger.Error("order consumer stopped", "error", err)
			}
		}()
		log.Printf("✅ Kafka order consumer started (topic: %s)", cfg.OrderEventsTopic)
	} else {
		log.Printf("ℹ️  Kafka disabled (no KAFKA_BROKERS configured)")
	}

	// Cron jobs
	reporter := jobs.NewReporter(affiliateService, payoutService, slackService, emailService, cfg.Program.AdminEmail, cfg.Program.CurrencySymbol)
	cronManager := jobs.NewCronManager(affiliateService, reporter, appLogger)
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to setup cron jobs: %v", err)
	}
	cronManager.Start()
	log.Printf("✅ Cron jobs started successfully")

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(ctx, cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(strings.Join(cfg.CORSAllowedOrigins, ","))))
	e.Use(middleware.Gzip())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.DefaultSecurityHeadersConfig()))

	// Referral detection runs on every page request before routing
	trackingHandler := handlers.NewTrackingHandler(trackingService, appLogger)
	e.Pre(custommw.OptionalJWT(cfg.JWTSecret), trackingHandler.DetectReferral())

	router := &handlers.Router{
		JWTSecret: cfg.JWTSecret,
		Tracking:  trackingHandler,
		Affiliate: handlers.NewAffiliateHandler(affiliateService, payoutService),
		Admin:     handlers.NewAdminHandler(affiliateService, payoutService, exportService),
		Webhooks:  handlers.NewWebhookHandler(dispatcher, trackingService, cfg.OrderWebhookSecret, cfg.StripeWebhookSecret, appLogger),
		Health:    handlers.NewHealthHandler(db, redisPinger),
		API:       []echo.MiddlewareFunc{globalRateLimiter.RateLimitMiddleware()},
	}
	router.Register(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 Directorist Affiliate API starting on %s", address)
	log.Printf("📝 Log level: %s, Log format: %s", cfg.LogLevel, cfg.LogFormat)
	log.Printf("🔗 Referral parameter: ?%s= (cookie %d days)", cfg.Tracking.ReferralParam, cfg.Tracking.CookieDays)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Cron jobs: hourly code expiry, daily 8AM summary")

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	// Stops the rate limiter cleanup and the Kafka consumer
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

func openDatabase(cfg *config.Config) (*database.Client, error) {
	if cfg.DatabaseDriver == "sqlite3" {
		return database.NewSQLiteClient(cfg.DatabaseURL)
	}
	return database.NewClientWithSSL(cfg.DatabaseURL, &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	})
}

// openStorage archives exports on S3 when a bucket is set, on local disk otherwise
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.S3Bucket != "" {
		s, err := storage.NewS3Storage(ctx, storage.S3Config{
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("✅ Export archive on S3 (bucket: %s)", cfg.S3Bucket)
		return s, nil
	}
	s, err := storage.NewLocalStorage(cfg.StorageLocalPath)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ Export archive on disk (%s)", cfg.StorageLocalPath)
	return s, nil
}

func productRates(rates map[string]float64) commission.StaticRates {
	out := make(commission.StaticRates, len(rates))
	for id, rate := range rates {
		out[id] = decimal.NewFromFloat(rate)
	}
	return out
}
