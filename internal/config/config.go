package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SeedLocation is a location declared in configuration. Coordinates are
// optional; entries without them are resolved through the geocoder at
// startup.
type SeedLocation struct {
	Name      string
	Lat, Lon  float64
	HasCoords bool
}

type AppConfig struct {
	Port    string
	DataDir string // empty means in-memory storage

	OpenWeatherAPIKey string
	GeocoderAPIKey    string

	// HTTPTimeout bounds each outbound provider call.
	HTTPTimeout time.Duration

	// FetchInterval controls the realtime collection period.
	FetchInterval time.Duration

	// ForecastInterval controls the forecast refresh period.
	ForecastInterval time.Duration

	// FanOut bounds concurrent per-location work within one tick.
	FanOut int

	// Cache TTLs for the realtime/summary and forecast views.
	CacheTTL         time.Duration
	ForecastCacheTTL time.Duration

	// Per-tier store retention. Monthly aggregates are never expired.
	RawRetention    time.Duration
	HourlyRetention time.Duration
	DailyRetention  time.Duration

	// Locations to monitor.
	Locations []SeedLocation
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		DataDir:           os.Getenv("DATA_DIR"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),
		FanOut:            getenvInt("FETCH_FANOUT", 8),
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ForecastInterval, err = getenvDuration("FORECAST_INTERVAL", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ForecastCacheTTL, err = getenvDuration("FORECAST_CACHE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RawRetention, err = getenvDuration("RAW_RETENTION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HourlyRetention, err = getenvDuration("HOURLY_RETENTION", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DailyRetention, err = getenvDuration("DAILY_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	locs, err := parseLocations(os.Getenv("TELEMETRY_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// parseLocations parses "Name[@lat,lon]" entries separated by semicolons,
// e.g. "Lisbon@38.72,-9.14;Porto@41.15,-8.61;Faro".
func parseLocations(raw string) ([]SeedLocation, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var locs []SeedLocation
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, coords, hasCoords := strings.Cut(entry, "@")
		loc := SeedLocation{Name: strings.TrimSpace(name)}
		if loc.Name == "" {
			return nil, fmt.Errorf("invalid TELEMETRY_LOCATIONS entry %q: empty name", entry)
		}

		if hasCoords {
			latStr, lonStr, ok := strings.Cut(coords, ",")
			if !ok {
				return nil, fmt.Errorf("invalid TELEMETRY_LOCATIONS entry %q: want name@lat,lon", entry)
			}
			lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid latitude in %q: %w", entry, err)
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid longitude in %q: %w", entry, err)
			}
			loc.Lat, loc.Lon, loc.HasCoords = lat, lon, true
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
