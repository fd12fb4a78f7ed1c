package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trailmap-go/config"
	"trailmap-go/internal/api/handlers"
	"trailmap-go/internal/api/middleware"
	"trailmap-go/internal/cleanup"
	"trailmap-go/internal/core/ingest"
	"trailmap-go/internal/core/registry"
	"trailmap-go/internal/core/rollup"
	"trailmap-go/internal/core/store"
	"trailmap-go/internal/db"
	"trailmap-go/internal/db/repository"
	"trailmap-go/internal/integrations/mqtt"
	"trailmap-go/internal/logger"
	"trailmap-go/internal/sse"
	"trailmap-go/internal/util/timezone"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "/config/config.yaml", "path to the configuration file")
	flag.Parse()

	// Konfiguration laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logger initialisieren
	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	// Zeitzone für die Tageszuordnung laden
	loc := timezone.Load(cfg.Ingest.Timezone)
	log.Infof("Day bucketing timezone: %s", loc)

	// Datenbank initialisieren
	log.Info("Initializing database...")
	database, err := db.Init(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Info("Database initialization complete")

	// Kernkomponenten aufbauen
	repo := repository.NewSQLiteRepository(database, loc)
	engine := rollup.NewEngine(database, loc)
	detectionStore := store.New(database, repo, engine, store.Options{
		Retry: repository.RetryConfig{
			Attempts:        cfg.Ingest.RetryAttempts,
			InitialInterval: time.Duration(cfg.Ingest.RetryInitialMs) * time.Millisecond,
		},
		Timeout:             time.Duration(cfg.Ingest.StoreTimeoutSeconds) * time.Second,
		AllowUnknownCameras: cfg.Ingest.AllowUnknownCameras,
	})
	cameraRegistry := registry.NewService(repo)

	// SSE-Hub starten
	hub := sse.NewHub()
	go hub.Run()

	// Ingest-Pipeline
	gateway := ingest.NewGateway(detectionStore, repo, hub, cfg.Ingest, loc)
	pool := ingest.NewWorkerPool(gateway)
	defer pool.Shutdown()

	// MQTT-Push-Kanal
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT)
		mqttClient.RegisterHandler(ingest.NewPushConsumer(pool, 30*time.Second))
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
			mqttClient = nil
		} else {
			defer mqttClient.Stop()
		}
	} else {
		log.Info("MQTT is disabled in config")
	}

	// Bereinigung alter Detections
	cleanupService := cleanup.NewService(detectionStore, cfg.Cleanup)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
		defer cleanupService.Stop()
	}

	// Router aufbauen
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	apiHandler := handlers.NewAPIHandler(cameraRegistry, detectionStore, gateway, repo, hub)
	apiHandler.RegisterRoutes(router, middleware.BearerToken(cfg.Ingest.APIToken))

	systemHandler := handlers.NewSystemHandler(repo, pool)
	router.GET("/api/status", systemHandler.GetStatus)

	eventHandler := handlers.NewEventHandler(hub)
	router.GET("/api/events", eventHandler.StreamEvents)

	// Server mit Graceful Shutdown starten
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Server exited")
}
