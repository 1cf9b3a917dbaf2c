package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/merfish-atlas/viewer/internal/api"
	"github.com/merfish-atlas/viewer/internal/cache"
	"github.com/merfish-atlas/viewer/internal/config"
	"github.com/merfish-atlas/viewer/internal/dataset"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	caches, err := cache.NewManager(cache.Config{
		PayloadSizeMB: cfg.Cache.PayloadSizeMB,
		PayloadTTL:    time.Duration(cfg.Cache.PayloadTTLMinutes) * time.Minute,
		MetaCacheSize: cfg.Cache.MetaCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to create cache manager: %v", err)
	}
	defer caches.Close()

	catalog := dataset.NewCatalog(cfg.Data.Root, cfg.Data.DefaultVariant, cfg.Data.Variants)

	server, err := api.NewServer(cfg, catalog, caches)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	defer server.Close()

	router := api.NewRouter(server, cfg)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("%s listening on %s (variant %s)", cfg.Server.Title, addr, catalog.Default())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
