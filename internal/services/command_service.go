package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/location-agent/internal/constants"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/internal/state_managers"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Poller runs poll cycles on demand.
type Poller interface {
	RunCycle(ctx context.Context) ([]location.UserLocation, error)
	SetCredential(credential string)
}

// UserDirectory lists the users known to the store.
type UserDirectory interface {
	LoadUsers() ([]models.UserSummary, error)
}

// CommandService receives commands over MQTT and publishes the results on a
// response topic.
type CommandService struct {
	// Configuration Fields
	topic string
	qos   int

	// Dependencies
	poller     Poller
	users      UserDirectory
	store      state_managers.Store
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	// Internal state management
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandService initializes a new CommandService with given parameters.
func NewCommandService(topic string, qos int, poller Poller, users UserDirectory, store state_managers.Store,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *CommandService {
	ctx, cancel := context.WithCancel(context.Background())

	return &CommandService{
		topic:      topic,
		qos:        qos,
		poller:     poller,
		users:      users,
		store:      store,
		mqttClient: mqttClient,
		logger:     logger,
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (cs *CommandService) requestTopic() string  { return cs.topic + "/request" }
func (cs *CommandService) responseTopic() string { return cs.topic + "/response" }

// Start subscribes to the request topic.
func (cs *CommandService) Start() error {
	topic := cs.requestTopic()
	cs.logger.Info().Str("topic", topic).Msg("Starting CommandService and subscribing to MQTT topic")
	token := cs.mqttClient.Subscribe(topic, byte(cs.qos), cs.HandleCommand)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		return err
	}

	cs.logger.Info().Str("topic", topic).Msg("Successfully subscribed to MQTT topic")
	return nil
}

// Stop unsubscribes and waits for running commands to finish.
func (cs *CommandService) Stop() error {
	cs.mu.Lock()
	select {
	case <-cs.stopChan:
		cs.mu.Unlock()
		return errors.New("command service is not running")
	default:
		close(cs.stopChan)
	}
	cs.mu.Unlock()

	cs.cancel()
	cs.wg.Wait()

	topic := cs.requestTopic()
	token := cs.mqttClient.Unsubscribe(topic)
	token.Wait()
	if err := token.Error(); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
		return err
	}

	cs.logger.Info().Msg("CommandService stopped successfully")
	return nil
}

// HandleCommand decodes a request and executes it in the background so the
// MQTT router is not blocked while a poll cycle runs.
func (cs *CommandService) HandleCommand(client MQTT.Client, msg MQTT.Message) {
	cs.mu.Lock()

	select {
	case <-cs.stopChan:
		cs.mu.Unlock()
		cs.logger.Warn().Msg("Received command but service is stopping, ignoring command")
		return
	default:
		cs.wg.Add(1)
		cs.mu.Unlock()
	}

	go func(topic string, payload []byte) {
		defer cs.wg.Done()
		cs.process(topic, payload)
	}(msg.Topic(), msg.Payload())
}

func (cs *CommandService) process(topic string, payload []byte) {
	var req models.CmdRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to parse command request")
		cs.publish(models.CmdResponse{ID: uuid.NewString(), Error: "invalid request: " + err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	cs.logger.Info().Str("command", req.Command).Str("id", req.ID).Msg("Received command")

	cs.publish(cs.Execute(cs.ctx, req))
}

// Execute runs a single command.
func (cs *CommandService) Execute(ctx context.Context, req models.CmdRequest) models.CmdResponse {
	resp := models.CmdResponse{ID: req.ID, Command: req.Command}

	switch req.Command {
	case constants.CommandCheckConnection:
		if req.Cookie != "" {
			cs.poller.SetCredential(req.Cookie)
		}
		users, err := cs.poller.RunCycle(ctx)
		connected := users != nil
		resp.Success = connected
		resp.Result = connected
		if !connected {
			resp.Error = errorText(err)
		}

	case constants.CommandTriggerPoll:
		_, err := cs.poller.RunCycle(ctx)
		resp.Success = err == nil
		resp.Error = errorText(err)

	case constants.CommandGetUsers:
		if req.Cookie != "" {
			cs.poller.SetCredential(req.Cookie)
		}
		if users, err := cs.poller.RunCycle(ctx); users == nil {
			cs.logger.Error().Err(err).Msg("Error getting users")
			resp.Error = errorText(err)
			resp.Result = []models.UserSummary{}
			break
		}
		cs.loadUsers(&resp)

	case constants.CommandGetUsersFromDB:
		cs.loadUsers(&resp)

	case constants.CommandSetState:
		if err := cs.setState(req.Key, req.Value); err != nil {
			cs.logger.Warn().Err(err).Str("key", req.Key).Msg("Rejected state write")
			resp.Error = err.Error()
			break
		}
		resp.Success = true

	default:
		cs.logger.Warn().Str("command", req.Command).Msg("Unknown command")
		resp.Error = "unknown command: " + req.Command
	}

	return resp
}

func (cs *CommandService) loadUsers(resp *models.CmdResponse) {
	users, err := cs.users.LoadUsers()
	if err != nil {
		cs.logger.Error().Err(err).Msg("Failed to load users from store")
		resp.Error = err.Error()
		resp.Result = []models.UserSummary{}
		return
	}
	resp.Success = true
	resp.Result = users
}

func (cs *CommandService) setState(key string, raw json.RawMessage) error {
	meta, ok, err := cs.store.GetObject(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", state_managers.ErrObjectNotFound, key)
	}
	if !meta.Write {
		return fmt.Errorf("state %s is read-only", key)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return cs.store.SetValue(key, value, false)
}

func (cs *CommandService) publish(resp models.CmdResponse) {
	topic := cs.responseTopic()
	payload, err := json.Marshal(resp)
	if err != nil {
		cs.logger.Error().Err(err).Msg("Failed to serialize command response")
		return
	}

	token := cs.mqttClient.Publish(topic, byte(cs.qos), false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish command response")
			return
		}
	case <-cs.ctx.Done():
		cs.logger.Warn().Str("topic", topic).Msg("Publish operation cancelled")
		return
	}

	cs.logger.Debug().Str("topic", topic).Str("id", resp.ID).Msg("Command response published")
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
