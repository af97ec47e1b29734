// cmd/bridge/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vda5050-bridge/internal/adapter"
	"vda5050-bridge/internal/api"
	"vda5050-bridge/internal/config"
	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/redis"
	"vda5050-bridge/internal/repository"
	"vda5050-bridge/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	utils.SetupLogger(cfg.LogLevel)
	log := utils.Component("main")

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		log.Fatalf("Failed to load vehicle profile: %v", err)
	}

	var (
		opts    []adapter.Option
		history api.OrderHistory
	)
	db, err := repository.Open(cfg)
	switch {
	case errors.Is(err, repository.ErrDisabled):
		log.Info("Persistence disabled")
	case err != nil:
		log.Fatalf("Failed to open database: %v", err)
	default:
		repo := repository.NewRepository(db)
		opts = append(opts, adapter.WithOrderStore(repo), adapter.WithFactsheetStore(repo))
		history = repo
		log.Infof("Persisting orders with %s", cfg.DBDriver)
	}
	if cfg.RedisEnabled {
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		opts = append(opts, adapter.WithStateStore(redis.NewStateCache(client, cfg.StateTTL)))
		log.Infof("Caching vehicle state in redis at %s", cfg.RedisAddr())
	}

	exec := messaging.NewExecutor("bridge")
	manager := messaging.NewConnectionManager(exec, messaging.NewPahoTransport(cfg.MQTTBroker), messaging.ManagerConfig{
		Options: messaging.ConnectOptions{
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			KeepAlive: cfg.MQTTKeepAlive,
		},
		ReconnectInterval: cfg.ReconnectInterval,
	})

	vehicle, err := adapter.New(manager, profile.Vehicle(cfg.SerialNumber), profile.FieldSupport(), adapter.Config{
		Topics:               messaging.NewTopicBuilder(cfg.InterfaceName, cfg.MajorVersion, cfg.Manufacturer, cfg.SerialNumber),
		ProtocolVersion:      cfg.ProtocolVersion,
		OrderQoS:             byte(cfg.OrderQoS),
		MaxDistanceInAdvance: cfg.MaxDistanceInAdvance,
		StateRequestInterval: cfg.StateRequestInterval,
		DefaultMapID:         profile.MapID,
		RequestFactsheet:     cfg.RequestFactsheet,
	}, opts...)
	if err != nil {
		log.Fatalf("Failed to create vehicle adapter: %v", err)
	}
	if err := vehicle.Enable(); err != nil {
		log.Fatalf("Failed to enable vehicle adapter: %v", err)
	}

	server := api.NewServer(api.NewHandler(vehicle, history))
	go func() {
		log.Infof("HTTP API listening on %s", cfg.HTTPAddr)
		if err := server.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}
	if err := vehicle.Disable(); err != nil {
		log.WithError(err).Warn("Failed to disable vehicle adapter")
	}
	manager.Disconnect()
	exec.Stop()
	log.Info("Bridge shutdown completed")
}
