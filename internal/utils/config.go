package utils

import (
	"errors"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	LogLevel string `yaml:"log_level"` // zerolog level name, defaults to info

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty disables TLS
		Username      string `yaml:"username"`       // Optional broker username
		Password      string `yaml:"password"`       // Optional broker password
	} `yaml:"mqtt"`

	LocationSharing struct {
		Endpoint        string        `yaml:"endpoint"`         // Location sharing URL, empty selects the default
		Cookie          string        `yaml:"cookie"`           // Session cookie header value
		PollingInterval int           `yaml:"polling_interval"` // Seconds between polls, 0 disables the timer
		RequestTimeout  time.Duration `yaml:"request_timeout"`  // Timeout for a single fetch
	} `yaml:"location_sharing"`

	Fences []models.Fence `yaml:"fences"`

	Places struct {
		Topic string `yaml:"topic"` // MQTT topic for places notifications, empty disables them
		QOS   int    `yaml:"qos"`   // MQTT QoS level for places notifications
	} `yaml:"places"`

	Command struct {
		Enabled bool   `yaml:"enabled"` // Enable/disable the command service
		Topic   string `yaml:"topic"`   // Base MQTT topic for command requests and responses
		QOS     int    `yaml:"qos"`     // MQTT QoS level for command messages
	} `yaml:"command"`

	Store struct {
		Type string `yaml:"type"` // memory or file
		File string `yaml:"file"` // Path of the state snapshot for the file store
	} `yaml:"store"`

	Geocoding struct {
		MapsAPIKey string `yaml:"maps_api_key"` // Google Maps API key, empty disables reverse geocoding
	} `yaml:"geocoding"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// PollingInterval returns the configured polling interval as a duration.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.LocationSharing.PollingInterval) * time.Second
}

// ValidFences splits the configured fences into valid ones and the
// validation errors of the rest.
func (c *Config) ValidFences() ([]models.Fence, []error) {
	valid := make([]models.Fence, 0, len(c.Fences))
	var invalid []error
	seen := make(map[string]struct{}, len(c.Fences))

	for _, f := range c.Fences {
		if err := f.Validate(); err != nil {
			invalid = append(invalid, err)
			continue
		}
		if _, dup := seen[f.FenceID]; dup {
			invalid = append(invalid, errors.New("duplicate fence id "+f.FenceID))
			continue
		}
		seen[f.FenceID] = struct{}{}
		valid = append(valid, f)
	}
	return valid, invalid
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "location-agent"
	}
	if c.LocationSharing.RequestTimeout <= 0 {
		c.LocationSharing.RequestTimeout = constants.DefaultRequestTimeout
	}
	if c.Command.Topic == "" {
		c.Command.Topic = "location-agent/command"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
}

func (c *Config) validate() error {
	if c.LocationSharing.PollingInterval < 0 {
		return errors.New("polling_interval must not be negative")
	}
	switch c.Store.Type {
	case "memory":
	case "file":
		if c.Store.File == "" {
			return errors.New("store.file is required for the file store")
		}
	default:
		return errors.New("unknown store type " + c.Store.Type)
	}
	if c.MQTT.Broker == "" && (c.Places.Topic != "" || c.Command.Enabled) {
		return errors.New("mqtt.broker is required for places notifications and commands")
	}
	return nil
}
