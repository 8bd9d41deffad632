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

	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/application/notifier"
	"github.com/sangkips/tablesync-api/internal/application/service"
	"github.com/sangkips/tablesync-api/internal/config"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/infrastructure/database"
	"github.com/sangkips/tablesync-api/internal/infrastructure/messaging"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository"
	"github.com/sangkips/tablesync-api/internal/infrastructure/repository/memory"
	"github.com/sangkips/tablesync-api/internal/presentation/http/handler"
	"github.com/sangkips/tablesync-api/internal/presentation/http/routes"
	"github.com/sangkips/tablesync-api/pkg/logger"
	"github.com/sangkips/tablesync-api/pkg/printer"
	"github.com/sangkips/tablesync-api/pkg/routing"
	"github.com/sangkips/tablesync-api/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	staffTokenExpiry       = 12 * time.Hour
	idempotencySweepPeriod = time.Hour
)

type stores struct {
	orders      domainRepo.OrderRepository
	partners    domainRepo.PartnerRepository
	idempotency domainRepo.IdempotencyRepository
	db          *gorm.DB
}

func openStores(cfg *config.Config, zlog *zap.Logger) (*stores, error) {
	if cfg.Database.Driver == "memory" {
		zlog.Warn("using in-memory storage; data is lost on restart")
		return &stores{
			orders:      memory.NewOrderRepository(),
			partners:    memory.NewPartnerRepository(),
			idempotency: memory.NewIdempotencyRepository(),
		}, nil
	}

	db, err := database.NewPostgresDB(&cfg.Database, cfg.App.Debug, zlog)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db, zlog); err != nil {
		return nil, err
	}
	return &stores{
		orders:      repository.NewOrderRepository(db),
		partners:    repository.NewPartnerRepository(db),
		idempotency: repository.NewIdempotencyRepository(db),
		db:          db,
	}, nil
}

func sweepIdempotencyKeys(ctx context.Context, repo domainRepo.IdempotencyRepository, zlog *zap.Logger) {
	ticker := time.NewTicker(idempotencySweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.DeleteExpired(ctx); err != nil {
				zlog.Warn("failed to delete expired idempotency keys", zap.Error(err))
			}
		}
	}
}

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Log.Level, cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open storage", zap.Error(err))
	}

	partnerService := service.NewPartnerService(st.partners, zlog)
	if cfg.Seed.PartnerSlug != "" {
		partner, err := partnerService.EnsurePartner(ctx, cfg.Seed.PartnerName, cfg.Seed.PartnerSlug)
		if err != nil {
			zlog.Fatal("failed to seed partner", zap.Error(err))
		}
		zlog.Info("partner ready", zap.String("partner_id", partner.ID.String()), zap.String("slug", partner.Slug))
	}

	// Snapshot fan-out to other consumers (kitchen display, analytics)
	hubOpts := []notifier.Option{
		notifier.WithLogger(zlog.Named("notifier")),
		notifier.WithMailboxSize(cfg.Notifier.MailboxSize),
	}
	var publisher *messaging.Publisher
	if cfg.RabbitMQ.URL != "" {
		publisher, err = messaging.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, zlog.Named("rabbitmq"))
		if err != nil {
			zlog.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		hubOpts = append(hubOpts, notifier.WithPublisher(publisher))
	}
	hub := notifier.NewHub(st.orders, st.partners, hubOpts...)

	router := routing.NewClient(routing.Config{
		BaseURL: cfg.Routing.BaseURL,
		Timeout: cfg.Routing.Timeout,
	})

	printerCfg := printer.Config{
		Type:    cfg.Printer.Type,
		USBPath: cfg.Printer.USBPath,
		Address: cfg.Printer.Address,
		Width:   cfg.Printer.Width,
	}
	thermalPrinter, err := printer.New(printerCfg)
	if err != nil {
		zlog.Warn("failed to initialize printer, printing disabled", zap.Error(err))
		printerCfg.Type = "none"
		thermalPrinter, _ = printer.New(printerCfg)
	}

	deliveryService := service.NewDeliveryService(router, st.partners, zlog)
	orderService := service.NewOrderService(st.orders, st.partners, deliveryService, hub, zlog)
	printerService := service.NewPrinterService(thermalPrinter, orderService, partnerService, printerCfg, zlog)
	paymentService := service.NewPaymentService(orderService, cfg.Payment.WebhookSecret, zlog)
	if cfg.Payment.WebhookSecret == "" {
		zlog.Warn("PAYMENT_WEBHOOK_SECRET is not set; payment webhooks will be rejected")
	}

	rateLimiter := routes.NewRateLimiter(&cfg.RateLimit)
	defer rateLimiter.Stop()

	handlers := &routes.Handlers{
		Health:   handler.NewHealthHandler(cfg.App.Name, hub),
		Order:    handler.NewOrderHandler(orderService, hub, zlog),
		Delivery: handler.NewDeliveryHandler(deliveryService),
		Printer:  handler.NewPrinterHandler(printerService),
		Settings: handler.NewSettingsHandler(partnerService),
		Payment:  handler.NewPaymentHandler(paymentService, zlog),
	}

	engine := routes.Setup(handlers, &routes.Deps{
		JWTManager:      utils.NewJWTManager(cfg.JWT.Secret, staffTokenExpiry),
		Cfg:             cfg,
		PartnerRepo:     st.partners,
		IdempotencyRepo: st.idempotency,
		RateLimiter:     rateLimiter,
		Logger:          zlog,
	})

	go sweepIdempotencyKeys(ctx, st.idempotency, zlog)

	port := cfg.App.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("starting server",
			zap.String("service", cfg.App.Name),
			zap.String("port", port),
			zap.String("env", cfg.App.Env),
			zap.String("db_driver", cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// Ending the hub first closes open SSE streams so the server can drain
	if err := hub.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("notifier did not drain in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			zlog.Warn("failed to close RabbitMQ publisher", zap.Error(err))
		}
	}
	if err := thermalPrinter.Close(); err != nil {
		zlog.Warn("failed to close printer", zap.Error(err))
	}
	if st.db != nil {
		if err := database.Close(st.db); err != nil {
			zlog.Warn("failed to close database", zap.Error(err))
		}
	}
	zlog.Info("server stopped")
}
