// Package main provides the entrypoint for the gismeteod weather daemon.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/gismeteo-go/gismeteo/internal/cache"
	"github.com/gismeteo-go/gismeteo/internal/config"
	"github.com/gismeteo-go/gismeteo/internal/gismeteo"
	"github.com/gismeteo-go/gismeteo/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gismeteod"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Int("locations", len(cfg.Locations)).
		Dur("update_interval", cfg.UpdateInterval).
		Msg("starting gismeteod")

	if len(cfg.Locations) == 0 {
		log.Fatal().Msg("no locations configured, set LOCATIONS")
	}

	var responseCache *cache.Cache
	if cfg.CacheDir != "" {
		responseCache = cache.New(cache.Config{
			Dir:         cfg.CacheDir,
			Domain:      "gismeteo",
			TTL:         cfg.CacheTTL,
			CleanOnInit: true,
			Logger:      log.With().Str("component", "cache").Logger(),
		})
	}

	clients := make(map[string]*gismeteo.Client, len(cfg.Locations))
	targets := make([]worker.Target, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		client, err := gismeteo.NewClient(gismeteo.ClientConfig{
			LocationID:  loc.LocationID,
			Latitude:    loc.Latitude,
			Longitude:   loc.Longitude,
			Cache:       responseCache,
			Logger:      log.With().Str("location", loc.Name).Logger(),
			EndpointURL: cfg.EndpointURL,
		})
		if err != nil {
			log.Fatal().Err(err).Str("location", loc.Name).Msg("invalid location")
		}
		clients[loc.Name] = client
		targets = append(targets, worker.Target{Name: loc.Name, Client: client})
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency: cfg.WorkerCount,
			Timeout:     cfg.UpdateTimeout,
		},
		Logger:  log.With().Str("component", "worker").Logger(),
		Targets: targets,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(cfg.UpdateInterval).StartImmediately().Do(func() { job.Run(ctx) }); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule refresh job")
	}
	scheduler.StartAsync()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !job.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "version": Version})
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(job.MetricsSnapshot())
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("location")
		client, ok := clients[name]
		if !ok {
			http.Error(w, "unknown location", http.StatusNotFound)
			return
		}
		mode := gismeteo.ModeHourly
		if r.URL.Query().Get("mode") == "daily" {
			mode = gismeteo.ModeDaily
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(client.Forecast(mode))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("status server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("status server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
