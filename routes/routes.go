package routes

import (
	"net/http"
	"time"

	"voltslot/handlers"
	"voltslot/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterReservationRoutes registers the booking and lifecycle endpoints.
func RegisterReservationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/reservations")
	{
		api.Use(middleware.JWTAuthMiddleware(hb.Verifier))
		api.POST("/check-availability", hb.CheckAvailability)
		api.GET("/available-slots", hb.AvailableSlots)
		api.POST("", hb.CreateReservation)
		api.GET("", hb.ListReservations)
		api.GET("/:id", hb.GetReservation)
		api.GET("/:id/credentials", hb.Credentials)
		api.PATCH("/:id", hb.UpdateStatus)
		api.POST("/:id/cancel", hb.CancelReservation)
		api.POST("/:id/payment-intent", hb.PaymentIntent)

		// Operator-only endpoints
		operator := api.Group("")
		operator.Use(middleware.RequireOperator())
		operator.POST("/:id/check-in", hb.CheckIn)
		operator.POST("/:id/complete", hb.Complete)
	}
}

// RegisterPaymentRoutes registers the server-to-server payment endpoints.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/payments")
	{
		api.POST("/callback", middleware.SharedSecretMiddleware("X-Payment-Secret", hb.PaymentCallbackSecret), hb.PaymentCallback)
		// Stripe authenticates with the signature header, checked by the handler.
		api.POST("/stripe/webhook", hb.StripeWebhook)
	}
}

// RegisterAdminRoutes sets up endpoints for operator maintenance.
func RegisterAdminRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	adminGroup := r.Group("/api/admin")
	{
		adminGroup.Use(middleware.JWTAuthMiddleware(hb.Verifier), middleware.RequireOperator())
		adminGroup.GET("/jobs/dead-letter", hb.DeadLetters)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", func(c *gin.Context) {
		if hb.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		status := hb.Health.Status()
		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
}

// RegisterMetricsRoute exposes the Prometheus registry.
func RegisterMetricsRoute(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, gatherer prometheus.Gatherer) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterReservationRoutes(r, hb)
	RegisterPaymentRoutes(r, hb)
	RegisterAdminRoutes(r, hb)
	RegisterHealthRoute(r, hb)
	RegisterMetricsRoute(r, gatherer)
}
