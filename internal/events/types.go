// Package events defines event types and enumerations for the Arclight event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Relay lifecycle events
	EventRelayStarted EventType = "relay_started"
	EventRelayStopped EventType = "relay_stopped"

	// Per-service peer events
	EventPeerConnected     EventType = "peer_connected"
	EventPeerDisconnected  EventType = "peer_disconnected"
	EventPeerAuthenticated EventType = "peer_authenticated"

	// Connection-level authorization (api key gate)
	EventAuthorizationResult EventType = "authorization_result"

	// Message diagnostics
	EventMessageSent     EventType = "message_sent"
	EventMessageReceived EventType = "message_received"

	// Game server registry events
	EventGameServerRegistered        EventType = "gameserver_registered"
	EventGameServerUnregistered      EventType = "gameserver_unregistered"
	EventGameServerRegistrationFail  EventType = "gameserver_registration_failure"
	EventGameServerSessionStarted    EventType = "gameserver_session_started"
	EventGameServerSessionEnded      EventType = "gameserver_session_ended"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// RelayStatusPayload accompanies relay started/stopped events.
type RelayStatusPayload struct {
	ListenAddr string
	APIEnabled bool
}

// PeerPayload accompanies peer connected/disconnected/authenticated events.
type PeerPayload struct {
	ServiceName string
	PeerID      string
	RemoteAddr  string
	UserID      string
	DisplayName string
}

// AuthorizationPayload accompanies authorization pass/fail events.
type AuthorizationPayload struct {
	ServiceName string
	RemoteAddr  string
	Authorized  bool
}

// MessagePayload accompanies message sent/received diagnostics events.
type MessagePayload struct {
	ServiceName string
	PeerID      string
	RemoteAddr  string
	TypeSymbol  int64
	TypeName    string
	Size        int
}

// GameServerPayload accompanies game server registered/unregistered events.
type GameServerPayload struct {
	ServerID        uint64
	ExternalAddress string
	Port            uint16
	RegionSymbol    int64
	VersionLock     int64
	SessionID       string
}

// RegistrationFailurePayload accompanies registration failure events.
type RegistrationFailurePayload struct {
	ServerID   uint64
	RemoteAddr string
	Reason     string
}

// SessionPayload accompanies session started/ended events.
type SessionPayload struct {
	ServerID  uint64
	SessionID string
	StartedAt time.Time
}
