// Package telemetry publishes relay lifecycle events to an MQTT broker.
// Publishing is fire and forget; a slow or absent broker never blocks
// the relay.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/util"
)

// MQTT topic suffixes, appended to the configured topic base.
const (
	TopicRelayStatus = "relay/status"
	TopicServers     = "relay/servers"
	TopicSessions    = "relay/sessions"
)

// MQTTHandler manages the MQTT connection and publishes telemetry
// events from the event bus.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT telemetry handler.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: map[string]interface{}{
			"hostname":    sysInfo.Hostname,
			"os":          sysInfo.OS,
			"app_version": "1.0.0",
		},
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("arclight-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	return handler, nil
}

// Start connects to the broker, subscribes to relay events, and blocks
// until the context is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.publish(TopicRelayStatus, map[string]interface{}{"event": "relay_stopped"})
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventRelayStarted, "mqtt.relayStarted", h.onRelayStatus)
	h.eventBus.Subscribe(events.EventRelayStopped, "mqtt.relayStopped", h.onRelayStatus)
	h.eventBus.Subscribe(events.EventGameServerRegistered, "mqtt.serverRegistered", h.onServerChange)
	h.eventBus.Subscribe(events.EventGameServerUnregistered, "mqtt.serverUnregistered", h.onServerChange)
	h.eventBus.Subscribe(events.EventGameServerRegistrationFail, "mqtt.registrationFail", h.onServerChange)
	h.eventBus.Subscribe(events.EventGameServerSessionStarted, "mqtt.sessionStarted", h.onSessionChange)
	h.eventBus.Subscribe(events.EventGameServerSessionEnded, "mqtt.sessionEnded", h.onSessionChange)
}

func (h *MQTTHandler) topic(suffix string) string {
	base := h.cfg.TopicBase
	if base == "" {
		base = "arclight"
	}
	return base + "/" + suffix
}

// buildMessage wraps a payload with the handler metadata and a
// timestamp.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(suffix string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", suffix).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(h.topic(suffix), 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", suffix).Msg("MQTT publish failed")
		}
	}()
}

func (h *MQTTHandler) onRelayStatus(ctx context.Context, event events.Event) error {
	h.publish(TopicRelayStatus, map[string]interface{}{
		"event":   string(event.Type),
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onServerChange(ctx context.Context, event events.Event) error {
	h.publish(TopicServers, map[string]interface{}{
		"event":   string(event.Type),
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onSessionChange(ctx context.Context, event events.Event) error {
	h.publish(TopicSessions, map[string]interface{}{
		"event":   string(event.Type),
		"payload": event.Payload,
	})
	return nil
}
