package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/aggregate"
	httpapi "github.com/PKA-OpenDynamics/CityLens-sub001/internal/api/http"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/cache"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/config"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/registry"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/scheduler"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/store"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry/adapters"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Tiered store: persistent when a data directory is configured,
	// in-memory otherwise.
	retention := store.Retention{
		Raw:    cfg.RawRetention,
		Hourly: cfg.HourlyRetention,
		Daily:  cfg.DailyRetention,
	}
	var st telemetry.Store
	if cfg.DataDir != "" {
		badgerStore, err := store.NewBadgerStore(store.BadgerConfig{Path: cfg.DataDir}, retention)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		st = badgerStore
	} else {
		log.Println("no DATA_DIR configured; using in-memory store")
		st = store.NewMemoryStore(retention)
	}
	defer st.Close()

	// Read-through cache in front of the store.
	backend, err := cache.NewRistrettoBackend()
	if err != nil {
		log.Fatalf("failed to create cache: %v", err)
	}
	defer backend.Close()
	telemetryCache := cache.New(backend)

	// Location registry, seeded from configuration.
	var gc registry.Geocoder
	if cfg.GeocoderAPIKey != "" {
		gc = registry.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}
	reg := registry.New(gc)
	for _, seed := range cfg.Locations {
		loc, err := reg.Add(telemetry.Location{
			Name:   seed.Name,
			Lat:    seed.Lat,
			Lon:    seed.Lon,
			Active: true,
		})
		if err != nil {
			log.Fatalf("failed to register location %q: %v", seed.Name, err)
		}
		log.Printf("registered location %s (%s) at %.4f,%.4f", loc.Name, loc.ID, loc.Lat, loc.Lon)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var provs []telemetry.Adapter
	provs = append(provs, adapters.NewOpenMeteoAdapter(httpClient))
	provs = append(provs, adapters.NewAirQualityAdapter(httpClient))
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, adapters.NewOpenWeatherAdapter(httpClient, cfg.OpenWeatherAPIKey))
	}

	service := telemetry.NewService(reg, st, provs, telemetryCache, telemetry.ServiceConfig{
		FetchInterval:    cfg.FetchInterval,
		FanOut:           cfg.FanOut,
		CacheTTL:         cfg.CacheTTL,
		ForecastCacheTTL: cfg.ForecastCacheTTL,
	})

	// Configuration changes must not serve stale cached views.
	reg.OnChange(service.InvalidateLocation)

	engine := aggregate.New(st)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.FetchInterval = cfg.FetchInterval
	schedCfg.ForecastInterval = cfg.ForecastInterval
	sched := scheduler.New(service, engine, reg, schedCfg)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "citylens-telemetry",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "citylens-telemetry",
		})
	})

	httpapi.RegisterRoutes(app, service, reg)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
