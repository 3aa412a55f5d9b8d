package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zork-argento/server/internal/chat"
	"zork-argento/server/internal/config"
	"zork-argento/server/internal/generators"
	"zork-argento/server/internal/interfaces"
	"zork-argento/server/internal/storage"
	"zork-argento/server/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize storage connections. MySQL holds the adventure
	// documents and is required; Redis only caches recent lists.
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer mysqlStore.Close()
	log.Println("MySQL connected successfully")

	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v", err)
		redisStore = nil
	} else {
		defer redisStore.Close()
		log.Println("Redis connected successfully")
	}

	var store interfaces.AdventureStore = storage.NewCachedStore(mysqlStore, redisStore)

	// Remote narrative API
	if cfg.Narrative.APIKey == "" {
		log.Println("Warning: No narrative API key provided. Adventure generation will fail.")
	}
	narrativeClient := chat.NewClient(cfg.Narrative.BaseURL, cfg.Narrative.APIKey, cfg.Narrative.Timeout)

	// OpenAI media generators
	if cfg.OpenAI.APIKey == "" {
		log.Println("Warning: No OpenAI API key provided. Images and audio will be unavailable.")
	}
	imageClient := generators.NewImageClient(cfg.OpenAI)
	speechClient := generators.NewSpeechClient(cfg.OpenAI)

	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	mediaStore := generators.NewDiskMediaStore(cfg.Media.Directory, baseURL)

	// Event hub for turn-lifecycle notifications
	hub := web.NewEventHub()
	go hub.Run()

	registry := web.NewSessionRegistry(store, narrativeClient, imageClient, speechClient, mediaStore, hub)

	// Create router
	r := web.NewRouter(cfg, registry, hub, mediaStore.Directory())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in background
	go func() {
		log.Printf("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
