package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/sonos-player-go/internal/api"
	"github.com/strefethen/sonos-player-go/internal/auth"
	"github.com/strefethen/sonos-player-go/internal/config"
	"github.com/strefethen/sonos-player-go/internal/db"
	"github.com/strefethen/sonos-player-go/internal/devices"
	"github.com/strefethen/sonos-player-go/internal/discovery"
	"github.com/strefethen/sonos-player-go/internal/history"
	"github.com/strefethen/sonos-player-go/internal/hosted"
	"github.com/strefethen/sonos-player-go/internal/openapi"
	"github.com/strefethen/sonos-player-go/internal/sonos"
	"github.com/strefethen/sonos-player-go/internal/sonos/soap"
)

// Options controls server wiring.
type Options struct {
	// DisableDiscovery skips the SSDP search and uses Devices as the inventory.
	DisableDiscovery bool
	Devices          []discovery.Device
	Logger           *log.Logger
}

// NewHandler builds the HTTP handler and returns a shutdown function.
// ctx bounds discovery and every play; cancel it before draining the server
// so in-flight plays restore their devices and return. The shutdown function
// releases the database and must run after the server has drained.
func NewHandler(ctx context.Context, cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	soapClient := soap.NewClient(cfg.SoapTimeout())

	inventory := options.Devices
	if !options.DisableDiscovery {
		found, err := discovery.DiscoverDevices(ctx,
			discovery.NewSearcher(),
			discovery.NewResolver(cfg.DescriptionTimeout(), soapClient),
			discovery.Options{
				SearchTimeout: cfg.SSDPDiscoveryTimeout(),
				MaxResults:    cfg.SSDPMaxResults,
			},
			logger,
		)
		if err != nil {
			return nil, nil, err
		}
		inventory = found
	}
	logger.Printf("Found %d controllable devices", len(inventory))
	for _, device := range inventory {
		logger.Printf("  %s (%s) volume %d-%d", device.Name, device.ID, device.VolumeRange.Min, device.VolumeRange.Max)
	}

	controller := sonos.NewController(inventory, soapClient, sonos.ControllerOptions{
		PollInterval:      cfg.PlayPollInterval(),
		CompletionTimeout: cfg.PlayCompletionTimeout(),
	}, logger)

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestLogger(logger))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg.APIJWTSecret))

	var (
		recorder       sonos.PlayRecorder
		historyService *history.Service
		dbPair         *db.DBPair
	)
	if cfg.SQLiteDBPath != "" {
		logger.Printf("Using database: %s", cfg.SQLiteDBPath)
		pair, err := db.Init(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, err
		}
		dbPair = pair
		historyService = history.NewService(cfg, dbPair, logger)
		if err := historyService.StartPruneJob(); err != nil {
			_ = dbPair.Close()
			return nil, nil, err
		}
		history.RegisterRoutes(router, historyService)
		recorder = historyService
	} else {
		history.RegisterDisabledRoutes(router)
	}

	registerHealthRoutes(router, historyService)
	openapi.RegisterRoutes(router)
	devices.RegisterRoutes(router, controller, logger)
	sonos.RegisterRoutes(router, sonos.RouteOptions{
		BaseContext:   ctx,
		Controller:    controller,
		Lock:          sonos.NewDeviceSetLock(logger),
		Store:         hosted.NewStore(),
		Recorder:      recorder,
		AdvertisePort: cfg.AdvertisePort,
		StartTimeout:  cfg.PlayStartTimeout(),
		LockTimeout:   cfg.PlayLockTimeout(),
		Logger:        logger,
	})

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(cfg.AssetsDir, "index.html"))
	})
	router.Handle("/v1/assets/*", http.StripPrefix("/v1/assets/", http.FileServer(http.Dir(cfg.AssetsDir))))

	shutdown := func(ctx context.Context) error {
		if historyService != nil {
			historyService.StopPruneJob()
		}
		if dbPair == nil {
			return nil
		}
		return dbPair.Close()
	}

	return router, shutdown, nil
}

// healthChecker reports whether an optional dependency is working.
type healthChecker interface {
	IsHealthy() bool
}

func registerHealthRoutes(router chi.Router, historyService *history.Service) {
	var checks map[string]healthChecker
	if historyService != nil {
		checks = map[string]healthChecker{"history": historyService}
	}

	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		status := "healthy"
		components := map[string]string{}
		for name, check := range checks {
			components[name] = "healthy"
			if !check.IsHealthy() {
				components[name] = "degraded"
				status = "degraded"
			}
		}
		response := map[string]any{
			"status":     status,
			"service":    "sonos-player",
			"components": components,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
}

// AssetsAvailable reports whether the index page can be served.
func AssetsAvailable(assetsDir string) bool {
	_, err := os.Stat(filepath.Join(assetsDir, "index.html"))
	return !errors.Is(err, os.ErrNotExist)
}
