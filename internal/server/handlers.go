package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coursepay/internal/domain"
	"coursepay/internal/provider"
	"coursepay/internal/service"
)

type initiateRequest struct {
	CourseID string `json:"courseId" binding:"required"`
	Metadata struct {
		SuccessURL string `json:"successUrl" binding:"required"`
		CancelURL  string `json:"cancelUrl" binding:"required"`
		SourceURL  string `json:"sourceUrl"`
	} `json:"metadata"`
}

// buyerFromHeaders reads the authenticated principal injected by the
// upstream gateway. Authentication itself is out of scope here.
func buyerFromHeaders(c *gin.Context) (service.Buyer, bool) {
	tenantID, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
	if err != nil {
		return service.Buyer{}, false
	}
	userID, err := uuid.Parse(c.GetHeader("X-User-ID"))
	if err != nil {
		return service.Buyer{}, false
	}
	return service.Buyer{
		TenantID: tenantID,
		UserID:   userID,
		Email:    c.GetHeader("X-User-Email"),
	}, true
}

func (s *Server) handleInitiate(c *gin.Context) {
	buyer, ok := buyerFromHeaders(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "failed", "error": "missing principal"})
		return
	}

	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": err.Error()})
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": "invalid course id"})
		return
	}

	result, err := s.checkout.Initiate(c.Request.Context(), buyer, courseID, service.RedirectURLs{
		SuccessURL: req.Metadata.SuccessURL,
		CancelURL:  req.Metadata.CancelURL,
		SourceURL:  req.Metadata.SourceURL,
	})
	if err != nil {
		s.writeCheckoutError(c, err)
		return
	}

	switch result.Status {
	case service.CheckoutGranted:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case service.CheckoutInitiated:
		c.JSON(http.StatusOK, gin.H{
			"status":         "initiated",
			"paymentTracker": result.PurchaseID.String(),
			"redirectUrl":    result.RedirectURL,
		})
	default:
		s.log.Error("checkout returned unexpected status", slog.String("status", string(result.Status)))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "internal error"})
	}
}

func (s *Server) handleVerify(c *gin.Context) {
	buyer, ok := buyerFromHeaders(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "failed", "error": "missing principal"})
		return
	}
	purchaseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "failed", "error": "invalid purchase id"})
		return
	}

	status, err := s.checkout.Verify(c.Request.Context(), buyer.TenantID, purchaseID)
	if errors.Is(err, domain.ErrPurchaseNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "failed", "error": "purchase not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(status)})
}

func (s *Server) handleWebhook(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenant"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if _, err := s.webhooks.Handle(c.Request.Context(), tenantID, c.Param("provider"), payload, c.Request.Header); err != nil {
		// Retryable from the provider's perspective: resolution or
		// persistence failed, and a later delivery may succeed.
		s.log.Error("webhook handling failed",
			slog.String("tenant_id", tenantID.String()),
			slog.String("provider", c.Param("provider")),
			slog.Any("error", err),
		)
		c.Status(http.StatusServiceUnavailable)
		return
	}

	// Every resolved outcome is acknowledged: confirmed, duplicate,
	// ignored, or anomalous, the event was handled as far as the provider
	// is concerned.
	c.Status(http.StatusOK)
}

func (s *Server) writeCheckoutError(c *gin.Context, err error) {
	var cfgErr *provider.ConfigError

	switch {
	case errors.Is(err, domain.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "failed", "error": "course not found"})
	case errors.As(err, &cfgErr):
		// Surfaced verbatim: a tenant admin needs to know exactly which
		// field to fix.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "failed", "error": cfgErr.Error()})
	case errors.Is(err, domain.ErrNoProviderConfigured), errors.Is(err, domain.ErrUnknownProvider):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "failed", "error": err.Error()})
	case errors.Is(err, domain.ErrProviderUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed", "error": "payment provider unavailable, try again"})
	default:
		s.log.Error("checkout initiation failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "error": "internal error"})
	}
}
