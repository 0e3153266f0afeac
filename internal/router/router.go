// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/satmarket/satmarket-backend/internal/config"
	"github.com/satmarket/satmarket-backend/internal/handlers"
	"github.com/satmarket/satmarket-backend/internal/middleware"
	"github.com/satmarket/satmarket-backend/internal/oracle"
	"github.com/satmarket/satmarket-backend/internal/services"
	"github.com/satmarket/satmarket-backend/internal/utils"
	"github.com/satmarket/satmarket-backend/internal/wallet"
)

// Services bundles everything the HTTP layer and the scheduler share.
type Services struct {
	Auth      *services.AuthService
	Products  *services.ProductService
	Checkout  *services.CheckoutService
	Orders    *services.OrderService
	Escrow    *services.EscrowService
	Disputes  *services.DisputeService
	Reconcile *services.ReconcileService
}

// BuildServices wires the service graph once so the router and the scheduler
// operate on the same instances.
func BuildServices(db *gorm.DB, cfg *config.Config) (*Services, error) {
	allocator, err := wallet.NewAllocator(db, cfg.Wallet.Network)
	if err != nil {
		return nil, err
	}

	chainOracle := oracle.NewHTTPOracle(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, time.Duration(cfg.Oracle.Timeout)*time.Second)

	notifier := services.NewNotificationService(db, cfg)
	escrowService := services.NewEscrowService(db, cfg, notifier)

	return &Services{
		Auth:      services.NewAuthService(db, cfg),
		Products:  services.NewProductService(db),
		Checkout:  services.NewCheckoutService(db, cfg, allocator),
		Orders:    services.NewOrderService(db, cfg, notifier),
		Escrow:    escrowService,
		Disputes:  services.NewDisputeService(db, cfg, escrowService, notifier),
		Reconcile: services.NewReconcileService(db, cfg, chainOracle, notifier),
	}, nil
}

func Initialize(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Warn("S3 storage unavailable, evidence uploads disabled")
		storageService, _ = services.NewStorageService(&config.Config{})
	}

	authHandler := handlers.NewAuthHandler(svc.Auth)
	productHandler := handlers.NewProductHandler(svc.Products)
	orderHandler := handlers.NewOrderHandler(svc.Checkout, svc.Orders, svc.Escrow)
	disputeHandler := handlers.NewDisputeHandler(svc.Disputes, storageService)
	reconcileHandler := handlers.NewReconcileHandler(svc.Reconcile, cfg)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.GeneralRateLimit())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:id", productHandler.GetProduct)

			protected := products.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", productHandler.CreateProduct)
				protected.DELETE("/:id", productHandler.DeleteProduct)
			}
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", middleware.CheckoutRateLimit(), orderHandler.CreateOrder)
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.PUT("/:id/ship", orderHandler.ShipOrder)
			orders.POST("/:id/release", orderHandler.ReleaseEscrow)
			orders.POST("/:id/disputes", disputeHandler.OpenDispute)
		}

		disputes := v1.Group("/disputes")
		disputes.Use(middleware.AuthRequired())
		{
			disputes.GET("/:id", disputeHandler.GetDispute)
			disputes.POST("/:id/messages", middleware.UploadRateLimit(), disputeHandler.AddMessage)
			disputes.GET("/:id/evidence/*key", disputeHandler.GetEvidenceURL)
			disputes.POST("/:id/escalate", disputeHandler.EscalateDispute)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.PUT("/disputes/:id/status", disputeHandler.UpdateDisputeStatus)
			admin.PUT("/disputes/:id/resolve", disputeHandler.ResolveDispute)
			admin.POST("/orders/:id/refund", orderHandler.RefundEscrow)
		}

	}

	// Off the versioned API surface: invoked by schedulers, not clients.
	internal := r.Group("/internal")
	{
		internal.POST("/reconcile", reconcileHandler.Trigger)
	}

	return r
}
