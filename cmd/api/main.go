package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/railboard/railboard_core/internal/aggregator"
	"github.com/railboard/railboard_core/internal/api"
	"github.com/railboard/railboard_core/internal/cache"
	"github.com/railboard/railboard_core/internal/config"
	"github.com/railboard/railboard_core/internal/liveevents"
	"github.com/railboard/railboard_core/internal/middleware"
	"github.com/railboard/railboard_core/internal/source"
	"github.com/railboard/railboard_core/internal/stations"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	log.Println("Starting railboard aggregation service...")

	// cache store: shared redis when configured, in-process otherwise
	var store cache.Store
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Host:       cfg.Redis.Host,
			Port:       cfg.Redis.Port,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
		redisClient = redisStore.Client()
		log.Println("✓ Redis board cache connected")
	} else {
		memStore := cache.NewMemoryStore(time.Minute)
		defer memStore.Close()
		store = memStore
		log.Println("✓ In-process board cache (no Redis configured)")
	}

	// station reference directory
	dir := stations.NewDirectory()
	if cfg.Stations.Host != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := dir.Connect(ctx, cfg.Stations); err != nil {
			log.Printf("station reference database unavailable, using embedded seed: %v", err)
		} else {
			log.Printf("✓ Station directory loaded (%d stations)", dir.Count())
		}
		cancel()
		defer dir.Close()
	}

	// source adapters, in priority order
	darwin := source.NewDarwinAdapter(cfg.Darwin)
	rtt := source.NewRTTAdapter(cfg.RTT)
	legacy := source.NewLegacyAdapter(cfg.Legacy)
	for _, ad := range []source.Adapter{darwin, rtt, legacy} {
		if ad.Enabled() {
			log.Printf("✓ Source adapter enabled: %s", ad.Name())
		} else {
			log.Printf("  Source adapter disabled: %s", ad.Name())
		}
	}

	agg := aggregator.New(darwin, rtt, legacy, store, dir, aggregator.Config{
		CacheTTL:       cfg.CacheTTL,
		AdapterTimeout: cfg.AdapterTimeout,
	})

	// live event bus and push-feed bridge
	bus := liveevents.NewBus(liveevents.Config{
		RingSize:         cfg.EventRingSize,
		SnapshotLimit:    cfg.EventSnapshot,
		SubscriberBuffer: cfg.SubscriberBuffer,
	})

	var feed source.Feed
	if cfg.Feed.URL != "" {
		feed = source.NewPushFeed(cfg.Feed)
	}
	bridge := liveevents.NewBridge(feed, bus)
	bridgeCtx, bridgeCancel := context.WithCancel(context.Background())
	defer bridgeCancel()
	if err := bridge.Start(bridgeCtx); err != nil {
		log.Printf("live feed failed to start: %v", err)
	} else if feed != nil {
		log.Println("✓ Live feed bridge started")
	}
	defer bridge.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "Railboard API",
		ReadTimeout:  5 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use("/v1/departures", middleware.RateLimitMiddleware(redisClient, cfg.RateLimitPerSec))

	handler := api.NewHandler(agg, bus, feed)
	handler.Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("🚆 Departure boards: http://localhost%s/v1/departures/KGX", addr)
	log.Printf("📡 Live stream:      http://localhost%s/v1/stream/KGX", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// errorHandler maps uncaught handler errors to JSON bodies
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
