package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/saiyam0211/aasta-core/internal/assignment"
	"github.com/saiyam0211/aasta-core/internal/catalog"
	"github.com/saiyam0211/aasta-core/internal/config"
	"github.com/saiyam0211/aasta-core/internal/courier"
	"github.com/saiyam0211/aasta-core/internal/customer"
	"github.com/saiyam0211/aasta-core/internal/httpx"
	"github.com/saiyam0211/aasta-core/internal/notify"
	"github.com/saiyam0211/aasta-core/internal/order"
	"github.com/saiyam0211/aasta-core/internal/payment"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	notifier := notify.NewAMQPNotifier(cfg.AMQPURL)
	defer notifier.Close()

	orderRepo := order.NewPGRepo(db)
	catalogRepo := catalog.NewPGRepo(db)
	customerRepo := customer.NewPGRepo(db)
	courierRepo := courier.NewPGRepo(db)
	offerRepo := assignment.NewPGOfferRepo(db)

	var geocoder customer.Geocoder = customer.NopGeocoder{}
	if cfg.GeocoderBaseURL != "" {
		geocoder = customer.NewHTTPGeocoder(cfg.GeocoderBaseURL)
	}
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.Currency)
	presence := notify.NewPresence(rdb, cfg.PresenceTTL)

	assigner := assignment.NewService(offerRepo, orderRepo, courierRepo, catalogRepo, notifier, presence)
	orders := order.NewService(orderRepo, catalogRepo, customerRepo, geocoder, gateway, assigner, order.Options{
		Currency:       cfg.Currency,
		PrepWindow:     cfg.PrepWindow,
		DeliveryWindow: cfg.DeliveryWindow,
	})

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/orders", createOrderHandler(orders))
	r.GET("/orders/:id", getOrderHandler(orders))
	r.PUT("/orders/:id/status", advanceStatusHandler(orders))
	r.POST("/orders/:id/settle", settleOrderHandler(orders))
	r.GET("/orders/customer/:customer_id", listOrdersByCustomerHandler(orders))
	r.GET("/orders/unassigned", listUnassignedHandler(orders, 5*time.Minute))
	r.POST("/payments/confirm", confirmPaymentHandler(orders))
	r.POST("/couriers/:id/response", courierResponseHandler(assigner))
	r.POST("/couriers/:id/heartbeat", courierHeartbeatHandler(presence))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		slog.Info("fulfillment-service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown incomplete", "err", err)
	}
}
