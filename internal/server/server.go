package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coursepay/internal/config"
	"coursepay/internal/database"
	"coursepay/internal/domain"
	"coursepay/internal/service"
)

// CheckoutFlow is what the transport needs from the checkout service.
type CheckoutFlow interface {
	Initiate(ctx context.Context, buyer service.Buyer, courseID uuid.UUID, urls service.RedirectURLs) (*service.CheckoutResult, error)
	Verify(ctx context.Context, tenantID, purchaseID uuid.UUID) (domain.PurchaseStatus, error)
}

// WebhookFlow receives provider deliveries.
type WebhookFlow interface {
	Handle(ctx context.Context, tenantID uuid.UUID, providerName string, payload []byte, headers http.Header) (service.WebhookOutcome, error)
}

// Server exposes the commerce subsystem over HTTP: checkout initiation
// and verification for the course UI, and the per-tenant provider webhook
// endpoints.
type Server struct {
	checkout CheckoutFlow
	webhooks WebhookFlow
	db       *sql.DB
	log      *slog.Logger
}

func New(checkout CheckoutFlow, webhooks WebhookFlow, db *sql.DB, log *slog.Logger) *Server {
	return &Server{checkout: checkout, webhooks: webhooks, db: db, log: log}
}

func (s *Server) Handler(cfg config.HTTP, env string) http.Handler {
	if env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/checkout", s.handleInitiate)
		api.GET("/purchases/:id", s.handleVerify)
	}

	// Webhook authenticity comes from the provider signature inside the
	// payload verification, never from these path parameters alone.
	r.POST("/webhooks/:tenant/:provider", s.handleWebhook)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := database.Health(c.Request.Context(), s.db)
	code := http.StatusOK
	if stats["status"] != "up" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("duration", fmt.Sprintf("%v", time.Since(start))),
		)
	}
}
