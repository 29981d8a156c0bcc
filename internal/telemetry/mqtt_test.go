package telemetry

import (
	"testing"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/events"
)

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{Enabled: false}, events.NewEventBus())
	if err == nil {
		t.Fatal("expected error when MQTT is disabled")
	}
}

func TestTopicBase(t *testing.T) {
	h := &MQTTHandler{cfg: config.MQTTConfig{TopicBase: "custom"}}
	if got := h.topic(TopicRelayStatus); got != "custom/relay/status" {
		t.Fatalf("topic = %q", got)
	}

	h.cfg.TopicBase = ""
	if got := h.topic(TopicSessions); got != "arclight/relay/sessions" {
		t.Fatalf("topic with default base = %q", got)
	}
}

func TestBuildMessage(t *testing.T) {
	h := &MQTTHandler{metadata: map[string]interface{}{"hostname": "relay-1"}}

	msg := h.buildMessage(map[string]interface{}{"event": "relay_started"})
	if msg["hostname"] != "relay-1" {
		t.Fatalf("metadata missing: %v", msg)
	}
	if _, ok := msg["timestamp"]; !ok {
		t.Fatal("timestamp missing")
	}
	payload, ok := msg["payload"].(map[string]interface{})
	if !ok || payload["event"] != "relay_started" {
		t.Fatalf("payload = %v", msg["payload"])
	}

	// Metadata map must not be mutated by building a message.
	if len(h.metadata) != 1 {
		t.Fatalf("metadata mutated: %v", h.metadata)
	}
}
