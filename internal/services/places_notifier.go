package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// PlacesNotifier publishes one message per tracked user to a places topic.
type PlacesNotifier struct {
	topic      string
	qos        int
	timeout    time.Duration
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger
	now        func() time.Time
}

// NewPlacesNotifier creates a PlacesNotifier for the given topic.
func NewPlacesNotifier(topic string, qos int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *PlacesNotifier {
	return &PlacesNotifier{
		topic:      topic,
		qos:        qos,
		timeout:    constants.DefaultNotifyTimeout,
		mqttClient: mqttClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Notify sends a PlacesMessage for every user. The timestamp is the capture
// time, not the upstream timestamp. A failed message does not stop the others.
func (n *PlacesNotifier) Notify(users []location.UserLocation) error {
	var errs []error
	for _, u := range users {
		msg := models.PlacesMessage{
			User:      u.DisplayName(),
			Latitude:  u.Latitude,
			Longitude: u.Longitude,
			Timestamp: n.now().UnixMilli(),
			Address:   u.Address,
		}

		if err := n.send(msg); err != nil {
			n.logger.Error().
				Err(err).
				Str("topic", n.topic).
				Str("user_id", u.ID).
				Msg("Error during places notification")
			errs = append(errs, err)
			continue
		}
		n.logger.Debug().Str("topic", n.topic).Str("user_id", u.ID).Msg("Places notified")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrPublish, errors.Join(errs...))
	}
	return nil
}

func (n *PlacesNotifier) send(msg models.PlacesMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize places message: %w", err)
	}

	token := n.mqttClient.Publish(n.topic, byte(n.qos), false, payload)
	if !token.WaitTimeout(n.timeout) {
		return errors.New("places notification timed out")
	}
	return token.Error()
}
