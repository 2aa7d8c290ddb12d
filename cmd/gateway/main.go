// cmd/gateway/main.go
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

	"smart-home-gateway/internal/alerting"
	"smart-home-gateway/internal/api"
	"smart-home-gateway/internal/auth"
	"smart-home-gateway/internal/config"
	"smart-home-gateway/internal/device"
	"smart-home-gateway/internal/firedetect"
	"smart-home-gateway/internal/ingest"
	"smart-home-gateway/internal/mqttsource"
	"smart-home-gateway/internal/stats"
	"smart-home-gateway/internal/storage"
	"smart-home-gateway/internal/threshold"
)

func main() {
	// --- Configuration ---
	configPath := flag.String("config", ".", "Path to the configuration file directory")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Printf("Error loading config, continuing with defaults: %v", err)
	}
	cfg := &config.AppConfig

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Initialize Components ---
	store := storage.NewMemoryStore(cfg.Retention.Cap, cfg.Retention.MaxFutureSkew, nil)
	aggregator := stats.NewAggregator(store)
	evaluator := threshold.NewEvaluator(cfg)
	hub := alerting.NewHub(cfg.Alerts.Capacity, cfg.Alerts.SubscriberQueue)
	gateway := ingest.NewGateway(store, evaluator, hub, cfg.RateLimit.MaxPerMinute)
	fire := firedetect.NewClient(cfg.Fire.BaseURL, cfg.Fire.WSURL, cfg.Fire.Timeout)
	authMgr := auth.NewAuthManager(cfg.Auth)

	// Device controller publishes over MQTT when a broker is configured.
	controller := device.NewController(nil, cfg.MQTT.Actuators, 0)
	bridge, err := mqttsource.NewBridge(ctx, cfg, gateway, controller)
	if err != nil {
		log.Printf("MQTT bridge unavailable, device commands disabled: %v", err)
	} else if bridge != nil {
		controller.SetPublisher(bridge)
	}

	apiHandler := api.NewAPIHandler(store, aggregator, gateway, hub, controller, fire, authMgr)

	// --- Setup HTTP Servers ---
	dataServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.DataPort),
		Handler: api.SetupDataRouter(apiHandler),
	}
	uiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.UIPort),
		Handler: api.SetupUIRouter(apiHandler),
	}

	go func() {
		log.Printf("Starting data ingestion server on port %d", cfg.Server.DataPort)
		if err := dataServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Data server ListenAndServe error: %v", err)
		}
	}()

	go func() {
		log.Printf("Starting dashboard API & WebSocket server on port %d", cfg.Server.UIPort)
		if err := uiServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("UI server ListenAndServe error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := dataServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Data server shutdown error: %v", err)
	}
	if err := uiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("UI server shutdown error: %v", err)
	}
	if bridge != nil {
		if err := bridge.Close(shutdownCtx); err != nil {
			log.Printf("MQTT disconnect error: %v", err)
		}
	}
	cancel()

	log.Println("Servers gracefully stopped.")
}
