package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"medicart/internal/config"
	"medicart/internal/events"
	httpapi "medicart/internal/http"
	"medicart/internal/logger"
	"medicart/internal/pricing"
	"medicart/internal/repository"
	"medicart/internal/repository/redisstore"
	"medicart/internal/repository/sqlitestore"
	"medicart/internal/service"

	_ "medicart/docs"
)

// @title Medicart API
// @version 1.0
// @description Cart, prescription and order service of the medicart pharmacy.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "optional config file (yaml, json, toml or .env)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func() error

	store := repository.NewMemoryStore()

	var carts repository.CartRepository = repository.NewMemoryCarts(store)
	if strings.EqualFold(cfg.CartStore, "redis") {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Error("connect redis", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		carts = redisstore.NewCarts(rdb, "cart", cfg.CartTTL)
		closers = append(closers, rdb.Close)
		log.Info("cart store", "backend", "redis", "addr", cfg.RedisAddr)
	}

	var orders repository.OrderRepository = repository.NewMemoryOrders(store)
	if strings.EqualFold(cfg.OrderStore, "sqlite") {
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Error("open sqlite", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		orders = db
		closers = append(closers, db.Close)
		log.Info("order store", "backend", "sqlite", "path", cfg.SQLitePath)
	}

	pricingCfg, err := cfg.Pricing()
	if err != nil {
		log.Error("pricing config", "err", err)
		os.Exit(1)
	}

	hub := httpapi.NewTrackingHub(log)
	sinks := []events.Sink{events.NewLogSink(log), hub}
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		ks, err := events.NewKafkaSink(events.KafkaConfig{Brokers: brokers, Topic: cfg.KafkaTopic})
		if err != nil {
			log.Error("kafka sink", "err", err)
			os.Exit(1)
		}
		sinks = append(sinks, ks)
		closers = append(closers, ks.Close)
		log.Info("publishing order events", "brokers", brokers, "topic", cfg.KafkaTopic)
	}
	dispatcher := events.NewDispatcher(log, cfg.EventBuffer, cfg.EventTimeout, sinks...)

	catalogSvc := service.NewCatalogService(store, repository.NewMemoryTx(store))
	rxSvc := service.NewPrescriptionService(repository.NewMemoryPrescriptions(store), log)
	cartSvc := service.NewCartService(carts, catalogSvc, rxSvc, pricing.NewCalculator(pricingCfg), cfg.DependencyTimeout)
	orderSvc := service.NewOrderService(orders, cartSvc, catalogSvc, dispatcher, log)

	srv := httpapi.NewServer(httpapi.Services{
		Catalog:       catalogSvc,
		Prescriptions: rxSvc,
		Carts:         cartSvc,
		Orders:        orderSvc,
	}, httpapi.NewAuthenticator(cfg.JWTSecret), hub, log)

	go sweepPrescriptions(ctx, log, rxSvc, cfg.PrescriptionSweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("event dispatcher did not drain", "err", err)
	}
	hub.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			log.Error("close", "err", err)
		}
	}
}

// sweepPrescriptions expires verified prescriptions once their validity ends.
func sweepPrescriptions(ctx context.Context, log *slog.Logger, rx *service.PrescriptionService, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := rx.ExpireDue(ctx, now.UTC()); err != nil && ctx.Err() == nil {
				log.Error("prescription sweep", "err", err)
			}
		}
	}
}
