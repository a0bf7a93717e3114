// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Location identifies one tracked place, either by a provider location
// id or by coordinates to resolve on first update.
type Location struct {
	Name       string
	LocationID int
	Latitude   float64
	Longitude  float64
}

// AppConfig holds the daemon configuration.
type AppConfig struct {
	// Locations to track.
	Locations []Location

	// UpdateInterval controls how often weather data is refreshed.
	UpdateInterval time.Duration

	// CacheDir is the response cache directory; empty disables caching.
	CacheDir string

	// CacheTTL is the default response cache lifetime.
	CacheTTL time.Duration

	// WorkerCount caps concurrent per-location updates.
	WorkerCount int

	// UpdateTimeout bounds a single location update.
	UpdateTimeout time.Duration

	// EndpointURL overrides the provider API base URL (testing against a
	// mirror). Empty means the production endpoint.
	EndpointURL string

	Port string

	LogLevel string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	interval, err := getenvDuration("UPDATE_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.UpdateInterval = interval

	cfg.CacheDir = os.Getenv("CACHE_DIR")

	ttl, err := getenvDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = ttl

	cfg.WorkerCount = getenvInt("WORKER_COUNT", 4)

	timeout, err := getenvDuration("UPDATE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.UpdateTimeout = timeout

	cfg.EndpointURL = os.Getenv("GISMETEO_ENDPOINT_URL")

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	locs, err := parseLocations(os.Getenv("LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	return cfg, nil
}

// parseLocations parses the LOCATIONS variable: semicolon-separated
// entries of "name=lat,lon" or "name=#id", e.g.
//
//	LOCATIONS=home=59.93,30.31;office=#4079
func parseLocations(s string) ([]Location, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var locs []Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q", entry)
		}

		loc := Location{Name: strings.TrimSpace(name)}
		value = strings.TrimSpace(value)

		if id, found := strings.CutPrefix(value, "#"); found {
			n, err := strconv.Atoi(id)
			if err != nil {
				return nil, fmt.Errorf("invalid location id in LOCATIONS entry %q: %w", entry, err)
			}
			loc.LocationID = n
		} else {
			latStr, lonStr, found := strings.Cut(value, ",")
			if !found {
				return nil, fmt.Errorf("invalid coordinates in LOCATIONS entry %q", entry)
			}
			lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid latitude in LOCATIONS entry %q: %w", entry, err)
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid longitude in LOCATIONS entry %q: %w", entry, err)
			}
			loc.Latitude = lat
			loc.Longitude = lon
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
		n, err := strconv.Atoi(v)
		if err == nil {
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
