// cmd/vehiclesim/main.go
package main

import (
	"bufio"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"vda5050-bridge/internal/config"
	"vda5050-bridge/internal/mapping"
	"vda5050-bridge/internal/messaging"
	"vda5050-bridge/internal/models"
	"vda5050-bridge/internal/simulator"
	"vda5050-bridge/internal/utils"
)

// vehiclesim plays the vehicle side. Every line read from stdin drives the
// vehicle to its next released node.
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

	simCfg := simulator.Config{
		Topics:               messaging.NewTopicBuilder(cfg.InterfaceName, cfg.MajorVersion, cfg.Manufacturer, cfg.SerialNumber),
		ProtocolVersion:      cfg.ProtocolVersion,
		StatePublishInterval: cfg.StatePublishInterval,
		Factsheet:            profile.Factsheet(),
	}
	if p := profile.InitialPosition; p != nil {
		simCfg.LastNodeID = p.NodeID
		simCfg.Position = &models.AgvPosition{
			X:                   float64(p.X) / 1000,
			Y:                   float64(p.Y) / 1000,
			Theta:               mapping.ToRadians(p.Orientation),
			MapID:               profile.MapID,
			PositionInitialized: true,
		}
	}

	exec := messaging.NewExecutor("vehicle")
	manager := messaging.NewConnectionManager(exec, messaging.NewPahoTransport(cfg.MQTTBroker), messaging.ManagerConfig{
		Options: messaging.ConnectOptions{
			ClientID:  cfg.MQTTClientID + "_vehicle",
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			KeepAlive: cfg.MQTTKeepAlive,
		},
		ReconnectInterval: cfg.ReconnectInterval,
	})
	sim := simulator.New(manager, simCfg)
	if err := sim.Start(); err != nil {
		log.Fatalf("Failed to start simulator: %v", err)
	}
	log.Infof("Simulating %s/%s, press enter to drive to the next node", cfg.Manufacturer, cfg.SerialNumber)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := sim.Step(); err != nil {
				if errors.Is(err, simulator.ErrNotStarted) {
					return
				}
				log.WithError(err).Warn("Cannot step")
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := sim.Shutdown(); err != nil {
		log.WithError(err).Warn("Shutdown failed")
	}
	exec.Stop()
	log.Info("Simulator stopped")
}
