package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pinksky/orderflow/internal/brand"
	"github.com/pinksky/orderflow/internal/checkout"
	checkoutdomain "github.com/pinksky/orderflow/internal/checkout/domain"
	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/discount"
	discountdomain "github.com/pinksky/orderflow/internal/discount/domain"
	"github.com/pinksky/orderflow/internal/formsession"
	formsessiondomain "github.com/pinksky/orderflow/internal/formsession/domain"
	"github.com/pinksky/orderflow/internal/notification"
	"github.com/pinksky/orderflow/internal/observability"
	obslogger "github.com/pinksky/orderflow/internal/observability/logger"
	obsmetrics "github.com/pinksky/orderflow/internal/observability/metrics"
	obstracing "github.com/pinksky/orderflow/internal/observability/tracing"
	"github.com/pinksky/orderflow/internal/payment"
	paymentdomain "github.com/pinksky/orderflow/internal/payment/domain"
	"github.com/pinksky/orderflow/internal/product"
	productdomain "github.com/pinksky/orderflow/internal/product/domain"
	"github.com/pinksky/orderflow/internal/providers"
	"github.com/pinksky/orderflow/internal/ratelimit"
	"github.com/pinksky/orderflow/internal/review"
	reviewdomain "github.com/pinksky/orderflow/internal/review/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	brand.Module,
	ratelimit.Module,
	providers.Module,
	notification.Module,
	product.Module,
	discount.Module,
	payment.Module,
	formsession.Module,
	review.Module,
	checkout.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	sessionSvc  formsessiondomain.Service
	reviewSvc   reviewdomain.Service
	checkoutSvc checkoutdomain.Service
	paymentSvc  paymentdomain.Service
	productSvc  productdomain.Service
	discountSvc discountdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	SessionSvc  formsessiondomain.Service
	ReviewSvc   reviewdomain.Service
	CheckoutSvc checkoutdomain.Service
	PaymentSvc  paymentdomain.Service
	ProductSvc  productdomain.Service
	DiscountSvc discountdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		sessionSvc:  p.SessionSvc,
		reviewSvc:   p.ReviewSvc,
		checkoutSvc: p.CheckoutSvc,
		paymentSvc:  p.PaymentSvc,
		productSvc:  p.ProductSvc,
		discountSvc: p.DiscountSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Intake sessions --------
	api.POST("/sessions", s.StartSession)
	api.PUT("/sessions/:id/steps/:step", s.UpdateSessionStep)
	api.POST("/sessions/:id/complete", s.CompleteSession)

	// -------- Direct checkout --------
	api.POST("/checkout", s.InitiateCheckout)
	api.POST("/checkout/:id/discount", s.ApplyCheckoutDiscount)
	api.POST("/checkout/:id/pay", s.ProcessCheckoutPayment)

	// -------- Catalog --------
	api.GET("/products", s.ListActiveProducts)
	api.GET("/products/:id", s.GetProductByID)

	// -------- Payments --------
	api.GET("/payments/:id/callback", s.HandlePaymentCallback)

	// -------- Webhooks --------
	api.POST("/webhooks/signer", s.HandleSignerWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	// The upstream proxy authenticates; every admin call must name its actor.
	admin.Use(ActorRequired())

	sessions := admin.Group("/sessions")
	{
		sessions.GET("/:id", s.GetSession)
		sessions.GET("/:id/activities", s.ListSessionActivities)
		sessions.POST("/:id/review", s.ReviewSession)
		sessions.POST("/:id/complete", s.MarkSessionCompleted)
		sessions.POST("/:id/unfulfill", s.MarkSessionUnfulfilled)
		sessions.POST("/:id/refund", s.RefundSession)
		sessions.POST("/:id/cancel", s.CancelSession)
		sessions.POST("/:id/recreate", s.RecreateSigningDocument)
	}

	products := admin.Group("/products")
	{
		products.GET("", s.ListProducts)
		products.POST("", s.CreateProduct)
		products.GET("/:id", s.GetProductByID)
		products.POST("/:id/deactivate", s.DeactivateProduct)
	}

	discounts := admin.Group("/discount-codes")
	{
		discounts.GET("", s.ListDiscountCodes)
		discounts.POST("", s.CreateDiscountCode)
		discounts.POST("/:code/deactivate", s.DeactivateDiscountCode)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
