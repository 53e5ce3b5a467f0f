package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/avdeev-dev/slotbook/api"
	"github.com/avdeev-dev/slotbook/config"
	"github.com/avdeev-dev/slotbook/internal/service/availability"
	"github.com/avdeev-dev/slotbook/internal/service/credit"
	"github.com/avdeev-dev/slotbook/internal/service/payment"
	"github.com/avdeev-dev/slotbook/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Availability availability.AvailabilityUseCase
	Reservation  reservation.ReservationUseCase
	Payment      payment.PaymentUseCase
	Credit       credit.LedgerUseCase
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(ctx context.Context, cfg *config.Config, svcs Services) error {
	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newRouter(svcs),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newRouter(svcs Services) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	paymentHandler := api.NewPaymentHandler(svcs.Payment)

	v1 := router.Group("/api/v1")
	api.NewAvailabilityHandler(svcs.Availability).Register(v1.Group("/availability"))
	api.NewBookingHandler(svcs.Reservation).Register(v1.Group("/bookings"))
	paymentHandler.Register(v1.Group("/payments"))
	api.NewCreditHandler(svcs.Credit).Register(v1.Group("/credits"))

	paymentHandler.RegisterWebhook(router.Group("/webhooks"))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
