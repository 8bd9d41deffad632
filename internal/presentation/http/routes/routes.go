package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/tablesync-api/internal/config"
	domainRepo "github.com/sangkips/tablesync-api/internal/domain/repository"
	"github.com/sangkips/tablesync-api/internal/presentation/http/handler"
	"github.com/sangkips/tablesync-api/internal/presentation/http/middleware"
	"github.com/sangkips/tablesync-api/pkg/utils"
	"go.uber.org/zap"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Health   *handler.HealthHandler
	Order    *handler.OrderHandler
	Delivery *handler.DeliveryHandler
	Printer  *handler.PrinterHandler
	Settings *handler.SettingsHandler
	Payment  *handler.PaymentHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	JWTManager      *utils.JWTManager
	Cfg             *config.Config
	PartnerRepo     domainRepo.PartnerRepository
	IdempotencyRepo domainRepo.IdempotencyRepository
	RateLimiter     *middleware.RateLimiter
	Logger          *zap.Logger
}

// NewRateLimiter builds the limiter from the configured requests per duration window.
func NewRateLimiter(cfg *config.RateLimitConfig) *middleware.RateLimiter {
	limiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.Requests > 0 && cfg.Duration > 0 {
		limiterCfg.RequestsPerSecond = float64(cfg.Requests) / float64(cfg.Duration)
		limiterCfg.BurstSize = cfg.Requests
	}
	limiterCfg.CleanupInterval = 5 * time.Minute
	limiterCfg.EntryTTL = 10 * time.Minute
	return middleware.NewRateLimiter(limiterCfg)
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(deps.Logger))
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS))

	router.GET("/health", h.Health.Health)

	v1 := router.Group("/api/v1")
	{
		registerPublicRoutes(v1, h, deps)
		registerPartnerRoutes(v1, h, deps)
	}

	return router
}

// registerPublicRoutes serves the customer ordering and tracking pages and the payment gateway
func registerPublicRoutes(v1 *gin.RouterGroup, h *Handlers, deps *Deps) {
	orders := v1.Group("/orders")
	orders.Use(deps.RateLimiter.Middleware())
	{
		orders.GET("/:id", h.Order.Get)
		orders.GET("/:id/billing", h.Order.Billing)
		orders.GET("/:id/stream", h.Order.Stream)
	}

	ordering := v1.Group("/partners/:partner_id")
	ordering.Use(middleware.PartnerMiddleware(deps.PartnerRepo), deps.RateLimiter.Middleware())
	{
		ordering.POST("/orders", middleware.IdempotencyRequired(middleware.IdempotencyConfig{
			Repo:   deps.IdempotencyRepo,
			Logger: deps.Logger,
		}), h.Order.Create)
		ordering.POST("/delivery/estimate", h.Delivery.Estimate)
	}

	v1.POST("/webhooks/payment", h.Payment.Webhook)
}

// registerPartnerRoutes serves staff, captain and admin screens
func registerPartnerRoutes(v1 *gin.RouterGroup, h *Handlers, deps *Deps) {
	staff := v1.Group("/partners/:partner_id")
	staff.Use(
		middleware.AuthMiddleware(deps.JWTManager),
		middleware.PartnerMiddleware(deps.PartnerRepo),
		deps.RateLimiter.Middleware(),
	)
	{
		staff.GET("/orders", h.Order.List)
		staff.GET("/orders/stream", h.Order.PartnerStream)
		staff.PUT("/orders/:id/status", h.Order.UpdateStatus)
		staff.POST("/orders/:id/print/bill", h.Printer.PrintBill)
		staff.POST("/orders/:id/print/kot", h.Printer.PrintKitchenTicket)
		staff.GET("/printer/status", h.Printer.GetStatus)
		staff.GET("/settings", h.Settings.GetSettings)
		staff.PUT("/settings", middleware.RequireRole(utils.RoleAdmin), h.Settings.UpdateSettings)
	}
}
