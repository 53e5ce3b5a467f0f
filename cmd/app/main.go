package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avdeev-dev/slotbook/config"
	"github.com/avdeev-dev/slotbook/internal/bootstrap"
	"github.com/avdeev-dev/slotbook/internal/cache"
	"github.com/avdeev-dev/slotbook/internal/gateway"
	"github.com/avdeev-dev/slotbook/internal/kafka"
	"github.com/avdeev-dev/slotbook/internal/repository"
	"github.com/avdeev-dev/slotbook/internal/service/availability"
	"github.com/avdeev-dev/slotbook/internal/service/credit"
	"github.com/avdeev-dev/slotbook/internal/service/payment"
	"github.com/avdeev-dev/slotbook/internal/service/reservation"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.ReferenceCacheTTL)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	staffRepo := repository.NewStaffRepository(pool)
	timelineRepo := repository.NewTimelineRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	creditRepo := repository.NewCreditRepository(pool)

	availabilityOpts := []availability.Option{}
	if cfg.Travel.BaseURL != "" {
		travelClient := gateway.NewTravelClient(cfg.Travel)
		availabilityOpts = append(availabilityOpts,
			availability.WithTravelFilter(travelClient, cfg.Booking.TravelMarginMin, cfg.Booking.AdjacencyWindowMin))
	}
	availabilityService := availability.NewAvailabilityService(staffRepo, redisCache, cfg.Booking.BufferMinutes, availabilityOpts...)

	reservationService := reservation.NewCoordinator(
		timelineRepo,
		bookingRepo,
		redisCache,
		producer,
		cfg.Kafka.BookingEventsTopic,
		time.Duration(cfg.Booking.HoldTTLMinutes)*time.Minute,
	)

	ledger := credit.NewLedger(creditRepo)
	paymentService := payment.NewService(
		paymentRepo,
		bookingRepo,
		ledger,
		gateway.NewClient(cfg.Gateway),
		payment.NewDefaultPolicy(),
		cfg.Gateway.Currency,
		payment.WithReturnURLs(cfg.Gateway.ReturnURL, cfg.Gateway.CancelURL),
		payment.WithProducer(producer, cfg.Kafka.PaymentEventsTopic),
	)

	if err := bootstrap.Run(ctx, cfg, bootstrap.Services{
		Availability: availabilityService,
		Reservation:  reservationService,
		Payment:      paymentService,
		Credit:       ledger,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
