package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strefethen/sonos-player-go/internal/config"
	"github.com/strefethen/sonos-player-go/internal/server"
)

// drainTimeout bounds how long shutdown waits for in-flight requests. A play
// interrupted by shutdown still issues several control calls per device.
const drainTimeout = 60 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.Default()

	if !server.AssetsAvailable(cfg.AssetsDir) {
		logger.Printf("No index.html in %s; the recorder page will not be served", cfg.AssetsDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, shutdownHandler, err := server.NewHandler(ctx, cfg, server.Options{Logger: logger})
	if err != nil {
		log.Fatalf("server init error: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Cancelling ctx interrupts in-flight plays; Shutdown then waits for
		// their restores before the database closes.
		<-ctx.Done()
		logger.Printf("Shutting down, waiting for in-flight plays to restore")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown error: %v", err)
		}
		if err := shutdownHandler(shutdownCtx); err != nil {
			logger.Printf("shutdown error: %v", err)
		}
	}()

	logger.Printf("sonos-player listening on %s (advertising port %d to devices)", cfg.Addr(), cfg.AdvertisePort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	<-done
}
