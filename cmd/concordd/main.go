// Command concordd serves the reconciliation REST API.
//
// Configuration comes from the environment (optionally via a .env file):
//
//	CONCORD_ADDR           listen address (default ":8080")
//	CONCORD_STORE          store kind, "bolt" or "redis" (default "bolt")
//	CONCORD_STORE_DSN      bolt file path or redis address/URL (default "concord.db")
//	CONCORD_PROFILES       path to a profiles YAML file (default: built-in defaults)
//	CONCORD_PROFILE        profile to serve with (default "default")
//	CONCORD_RATE_LIMIT     API requests per second (default 50)
//	CONCORD_RATE_BURST     rate limiter burst size (default 100)
//	CONCORD_CONFLICT_LIMIT default conflict cap on consensus responses (default 5)
//	CONCORD_MAX_CONCURRENT batch reconciliation parallelism (default 8)
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rkonrad/go-concord/infrastructure/httpapi"
	"github.com/rkonrad/go-concord/infrastructure/middleware"
	"github.com/rkonrad/go-concord/infrastructure/store"
	"github.com/rkonrad/go-concord/internal/application"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("concordd: %v", err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("concordd: no .env file found, using environment defaults")
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	profiles, err := loadProfiles()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	engine, err := profiles.Engine(envOr("CONCORD_PROFILE", application.DefaultProfileName))
	if err != nil {
		return fmt.Errorf("materialize engine: %w", err)
	}

	rawStore, err := store.NewRegistry().Open(
		envOr("CONCORD_STORE", "bolt"),
		envOr("CONCORD_STORE_DSN", "concord.db"),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := rawStore.Close(); err != nil {
			logger.Printf("concordd: close store: %v", err)
		}
	}()

	metrics := middleware.NewPrometheusMetrics()
	reviewStore := store.WithInstrumentation(
		store.WithRetry(rawStore, 3, 100*time.Millisecond, 2*time.Second),
		metrics,
	)

	reconcilerCfg := application.DefaultReconcilerConfig()
	if v, ok, err := envInt("CONCORD_MAX_CONCURRENT"); err != nil {
		return err
	} else if ok {
		reconcilerCfg.MaxConcurrentReviews = v
	}
	reconciler, err := application.NewReconciler(reconcilerCfg, engine, reviewStore, metrics)
	if err != nil {
		return fmt.Errorf("build reconciler: %w", err)
	}

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Addr = envOr("CONCORD_ADDR", serverCfg.Addr)
	if raw := os.Getenv("CONCORD_RATE_LIMIT"); raw != "" {
		limit, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parse CONCORD_RATE_LIMIT %q: %w", raw, err)
		}
		serverCfg.RateLimit = limit
	}
	if v, ok, err := envInt("CONCORD_RATE_BURST"); err != nil {
		return err
	} else if ok {
		serverCfg.RateBurst = v
	}
	if v, ok, err := envInt("CONCORD_CONFLICT_LIMIT"); err != nil {
		return err
	} else if ok {
		serverCfg.ConflictLimit = v
	}

	server, err := httpapi.NewServer(serverCfg, reconciler, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	if err := server.Start(context.Background()); err != nil {
		return err
	}
	logger.Printf("concordd: serving profile %q on %s (store %s)",
		engine.Profile, server.Addr(), envOr("CONCORD_STORE", "bolt"))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Println("concordd: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// loadProfiles reads the profile document named by CONCORD_PROFILES, or
// falls back to a single default profile with every unit at its defaults.
func loadProfiles() (*application.ProfileSet, error) {
	path := os.Getenv("CONCORD_PROFILES")
	if path == "" {
		return &application.ProfileSet{
			Version:  "1.0.0",
			Profiles: []application.Profile{{Name: application.DefaultProfileName}},
		}, nil
	}
	loader, err := application.NewProfileLoader()
	if err != nil {
		return nil, err
	}
	return loader.LoadFromFile(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s %q: %w", key, raw, err)
	}
	return v, true, nil
}
