package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/location-agent/internal/service_registry"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/locationsharing"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Str("file", *configPath).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", config.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	log = log.Level(level)

	fences, invalid := config.ValidFences()
	for _, e := range invalid {
		log.Warn().Err(e).Msg("Ignoring invalid fence")
	}

	if config.LocationSharing.Cookie == "" {
		log.Warn().Msg("No session cookie configured, polls fail until one is provided")
	}

	var store state_managers.Store
	switch config.Store.Type {
	case "file":
		store, err = state_managers.NewFileStore(config.Store.File, fileClient, log.With().Str("component", "store").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open state file")
		}
	default:
		store = state_managers.NewMemoryStore()
	}

	fetcher := locationsharing.NewClient(config.LocationSharing.Endpoint, config.LocationSharing.RequestTimeout)

	var geocoder location.Geocoder
	if config.Geocoding.MapsAPIKey != "" {
		g, err := location.NewGoogleGeocoder(config.Geocoding.MapsAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create reverse geocoder")
		}
		geocoder = g
	}

	// Initialize the shared MQTT connection when a broker is configured
	var mqttClient mqtt.MQTTClient
	if config.MQTT.Broker != "" {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttService := mqtt.NewMqttService(fileClient)
		err = mqttService.Initialize(mqtt.Options{
			Broker:        config.MQTT.Broker,
			ClientID:      clientID,
			CACertificate: config.MQTT.CACertificate,
			Username:      config.MQTT.Username,
			Password:      config.MQTT.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = mqttService
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, store, log)

	if err := serviceRegistry.RegisterServices(config, fences, fetcher, geocoder); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services did not stop cleanly")
	}
	if mqttClient != nil {
		mqttClient.Disconnect(250)
	}
}
