// Package server assembles the ledger's services and HTTP routes.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/concurrency"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/config"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/handlers"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/middleware"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/reference"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/services"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/validator"

	_ "github.com/Pranjal0410/real-estate-project-sub000/internal/docs" // Import swagger docs
)

// Services bundles every service the HTTP layer depends on.
type Services struct {
	Users      services.UserServicer
	Audit      services.AuditServicer
	Properties services.PropertyServicer
	Portfolios services.PortfolioServicer
	Trading    services.TradingServicer
}

// NewServices wires the services over db. All commands share one lock
// registry, so the process must be the only writer of the ledger tables.
func NewServices(db *gorm.DB, cfg *config.Config, refs *reference.Generator) *Services {
	ctrl := concurrency.NewController(
		concurrency.NewLockRegistry(),
		concurrency.DefaultPolicies(cfg.BuyMaxAttempts, cfg.BuyRetryBackoff),
	)
	properties := services.NewPropertyService(db)

	return &Services{
		Users:      services.NewUserService(db),
		Audit:      services.NewAuditService(db),
		Properties: properties,
		Portfolios: services.NewPortfolioService(db, ctrl, properties, cfg.OperationTimeout),
		Trading:    services.NewTradingService(db, ctrl, properties, refs, cfg.OperationTimeout),
	}
}

// NewRouter builds the Gin engine with middleware and all API routes.
func NewRouter(cfg *config.Config, svc *Services) *gin.Engine {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Audit)
	portfolioHandler := handlers.NewPortfolioHandler(svc.Portfolios, svc.Audit)
	tradingHandler := handlers.NewTradingHandler(svc.Trading, svc.Audit)
	propertyHandler := handlers.NewPropertyHandler(svc.Properties)

	validator.Register()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	// Pipeline routes feed the property catalog and prices
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(cfg.PipelineAPIKey))
	pipeline.POST("/properties", propertyHandler.CreateProperty)
	pipeline.POST("/prices", propertyHandler.RecordPrices)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)
	protected.GET("/properties/:id", propertyHandler.GetProperty)

	portfolios := protected.Group("/portfolios")
	portfolios.POST("", portfolioHandler.CreatePortfolio)
	portfolios.GET("", portfolioHandler.ListPortfolios)
	portfolios.GET("/:id", portfolioHandler.GetPortfolio)
	portfolios.PUT("/:id", portfolioHandler.UpdatePortfolio)
	portfolios.POST("/:id/close", portfolioHandler.ClosePortfolio)
	portfolios.POST("/:id/recalculate", portfolioHandler.Recalculate)
	portfolios.GET("/:id/holdings", portfolioHandler.GetHoldings)
	portfolios.GET("/:id/valuations", portfolioHandler.GetValuations)
	portfolios.GET("/:id/transactions", tradingHandler.GetHistory)
	portfolios.POST("/:id/buy", tradingHandler.Buy)
	portfolios.POST("/:id/sell", tradingHandler.Sell)
	portfolios.POST("/:id/transfer", tradingHandler.Transfer)
	portfolios.POST("/:id/dividend", tradingHandler.RecordDividend)

	transactions := protected.Group("/transactions")
	transactions.GET("/:id", tradingHandler.GetTransaction)
	transactions.POST("/:id/reverse", tradingHandler.Reverse)

	return router
}
