package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/swapgate/swapgate/internal/asset"
	"github.com/swapgate/swapgate/internal/config"
	"github.com/swapgate/swapgate/internal/engine"
	"github.com/swapgate/swapgate/internal/events"
	"github.com/swapgate/swapgate/internal/handler"
	"github.com/swapgate/swapgate/internal/ledger"
	"github.com/swapgate/swapgate/internal/middleware"
	"github.com/swapgate/swapgate/internal/pkg/logger"
	"github.com/swapgate/swapgate/internal/registry"
	"github.com/swapgate/swapgate/internal/repository"
	"github.com/swapgate/swapgate/internal/signer"
)

func main() {
	// 0. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	if !common.IsHexAddress(cfg.Chain.VerifyingContract) {
		log.Fatalf("Invalid verifying contract address: %s", cfg.Chain.VerifyingContract)
	}
	engineAddr := common.HexToAddress(cfg.Chain.VerifyingContract)
	domain := signer.NewDomain(cfg.Chain.ChainID, engineAddr)

	// 1. Asset backend
	var assets asset.Transactional
	switch cfg.Chain.AssetBackend {
	case "erc20":
		erc20, err := asset.NewERC20(cfg.Chain.RPCURL, cfg.Chain.OperatorKey, cfg.Chain.ChainID)
		if err != nil {
			log.Fatalf("Failed to init erc20 backend: %v", err)
		}
		assets = erc20
	default:
		assets = asset.NewBook(engineAddr)
	}

	// 2. Event sinks
	sinks := events.Multi{events.LogSink{}}
	hub := events.NewHub()
	sinks = append(sinks, hub)

	var eventStore *repository.PostgresEventStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			eventStore = repository.NewPostgresEventStore(db)
			sinks = append(sinks, eventStore)
		} else {
			logger.Error("Failed to connect to DB, events will not be persisted", "error", err)
		}
	}

	// 3. Core engine
	var adminAddr common.Address
	if cfg.Engine.AdminAddress != "" {
		if !common.IsHexAddress(cfg.Engine.AdminAddress) {
			log.Fatalf("Invalid admin address: %s", cfg.Engine.AdminAddress)
		}
		adminAddr = common.HexToAddress(cfg.Engine.AdminAddress)
	}

	eng := engine.New(domain, registry.New(), ledger.New(), engine.NewFeeTable(adminAddr), assets, sinks)
	checker := engine.NewChecker(eng, cfg.Engine.MaxCheckViolations)

	// 4. Idempotency store (Redis > Memory)
	var idemStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			idemStore = repository.NewRedisIdempotencyStore(redisClient,
				time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if idemStore == nil {
		idemStore = middleware.NewInMemIdempotencyStore()
	}

	// 5. Handlers
	offerHandler := handler.NewOfferHandler(eng, assets)
	settleHandler := handler.NewSettleHandler(eng, checker)
	feeHandler := handler.NewFeeHandler(eng)
	eventHandler := handler.NewEventHandler(eventStore, hub)

	// 6. Router
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "swapgate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(limiter))
	{
		v1.POST("/offers", offerHandler.Create)
		v1.GET("/offers/:id", offerHandler.Get)
		v1.DELETE("/offers/:id", offerHandler.Close)
		v1.POST("/offers/:id/check", settleHandler.Check)
		v1.POST("/nonces/cancel", settleHandler.CancelNonces)
		v1.GET("/fees/:referrer", feeHandler.Get)
		v1.GET("/events", eventHandler.List)
		v1.GET("/events/ws", eventHandler.Stream)

		v1.POST("/offers/:id/settle",
			middleware.IdempotencyMiddleware(idemStore),
			settleHandler.Settle)

		admin := v1.Group("")
		admin.Use(middleware.AdminMiddleware(cfg))
		admin.POST("/fees", feeHandler.Set)
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Swapgate started", "port", cfg.Server.Port,
			"chain_id", cfg.Chain.ChainID, "engine", engineAddr.Hex())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
