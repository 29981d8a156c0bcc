package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/util"
)

// Lobby visibility for matchmaking discovery.
const (
	LobbyTypePublic  uint8 = 0
	LobbyTypePrivate uint8 = 1
)

var (
	ErrDuplicateServerID  = errors.New("server id already registered")
	ErrNotRegistered      = errors.New("server id not registered")
	ErrSessionActive      = errors.New("server already has an active session")
	ErrNoSession          = errors.New("server has no active session")
	ErrSessionIDCollision = errors.New("session id already in use")
	ErrSessionFull        = errors.New("session player limit reached")
	ErrUnknownSlot        = errors.New("no such player slot")
	ErrSlotOccupied       = errors.New("player slot already occupied")
)

// PlayerSession is one joined player slot within an active session.
type PlayerSession struct {
	SlotID string
	PeerID string
	Team   int16
}

// RegisteredGameServer is the canonical record for one dedicated game
// server process. The registry owns these records; callers receive deep
// copies and must apply changes through registry operations.
type RegisteredGameServer struct {
	ServerID        uint64
	PeerID          string
	InternalAddress string
	ExternalAddress string
	Port            uint16
	RegionSymbol    int64
	VersionLock     int64
	RTT             time.Duration

	SessionStarted   bool
	SessionID        string
	LobbyType        uint8
	LevelSymbol      int64
	GameTypeSymbol   int64
	Channel          string
	PlayerLimit      int
	ActiveTarget     int
	Locked           bool
	Players          map[string]PlayerSession
	SessionStartedAt time.Time
}

// PlayerCount returns the number of currently joined player slots.
func (s *RegisteredGameServer) PlayerCount() int {
	return len(s.Players)
}

func (s *RegisteredGameServer) clone() *RegisteredGameServer {
	c := *s
	c.Players = make(map[string]PlayerSession, len(s.Players))
	for k, v := range s.Players {
		c.Players[k] = v
	}
	return &c
}

func (s *RegisteredGameServer) clearSession() {
	s.SessionStarted = false
	s.SessionID = ""
	s.LobbyType = LobbyTypePublic
	s.LevelSymbol = 0
	s.GameTypeSymbol = 0
	s.Channel = ""
	s.PlayerLimit = 0
	s.ActiveTarget = -1
	s.Locked = false
	s.Players = make(map[string]PlayerSession)
	s.SessionStartedAt = time.Time{}
}

// Registration carries the attributes a game server advertises when it
// registers.
type Registration struct {
	ServerID        uint64
	PeerID          string
	InternalAddress string
	ExternalAddress string
	Port            uint16
	RegionSymbol    int64
	VersionLock     int64
}

// SessionStart carries the full initial state of a new session. The
// starting request supplies final state, so the session is active as
// soon as it is indexed.
type SessionStart struct {
	SessionID      string
	LobbyType      uint8
	LevelSymbol    int64
	GameTypeSymbol int64
	Channel        string
	PlayerLimit    int
	ActiveTarget   int
}

// PlayerJoin requests a slot in a session for one peer. A game server
// reporting a join it already assigned supplies the slot id; an empty
// SlotID asks the registry to mint one.
type PlayerJoin struct {
	SlotID string
	PeerID string
	Team   int16
}

// TeamMove reassigns an occupied slot to another team.
type TeamMove struct {
	SlotID string
	Team   int16
}

// SessionUpdate is a partial update to an active session. All parts are
// validated before any is applied; a rejected update mutates nothing.
type SessionUpdate struct {
	Lock   *bool
	Joins  []PlayerJoin
	Leaves []string
	Moves  []TeamMove
}

// Options configures registration-time connectivity validation.
type Options struct {
	ValidateServers bool
	Probe           ReachabilityProbe
	ProbeTimeout    time.Duration
}

// Registry is the authoritative concurrent index of registered game
// servers, keyed by server id and, while a session is active, by
// session id. One mutex guards both indices so every operation is
// atomic across them.
type Registry struct {
	mu        sync.Mutex
	byServer  map[uint64]*RegisteredGameServer
	bySession map[string]*RegisteredGameServer

	opts Options
	bus  *events.EventBus
	log  zerolog.Logger
}

func NewRegistry(bus *events.EventBus, opts Options) *Registry {
	if opts.Probe == nil {
		opts.Probe = &UDPProbe{}
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &Registry{
		byServer:  make(map[uint64]*RegisteredGameServer),
		bySession: make(map[string]*RegisteredGameServer),
		opts:      opts,
		bus:       bus,
		log:       util.ComponentLogger("registry"),
	}
}

// Register validates and inserts a new game server. When connectivity
// validation is enabled the advertised external endpoint is probed
// before insertion; the probe runs outside the registry lock and a
// failed or timed-out probe leaves no trace in either index.
func (r *Registry) Register(ctx context.Context, reg Registration) (*RegisteredGameServer, error) {
	r.mu.Lock()
	_, dup := r.byServer[reg.ServerID]
	r.mu.Unlock()
	if dup {
		r.failRegistration(ctx, reg, ErrDuplicateServerID.Error())
		return nil, ErrDuplicateServerID
	}

	var rtt time.Duration
	if r.opts.ValidateServers {
		probeCtx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
		defer cancel()
		var err error
		rtt, err = r.opts.Probe.Probe(probeCtx, reg.ExternalAddress, reg.Port)
		if err != nil {
			reason := fmt.Sprintf("reachability probe failed: %v", err)
			r.failRegistration(ctx, reg, reason)
			return nil, fmt.Errorf("reachability probe: %w", err)
		}
	}

	server := &RegisteredGameServer{
		ServerID:        reg.ServerID,
		PeerID:          reg.PeerID,
		InternalAddress: reg.InternalAddress,
		ExternalAddress: reg.ExternalAddress,
		Port:            reg.Port,
		RegionSymbol:    reg.RegionSymbol,
		VersionLock:     reg.VersionLock,
		RTT:             rtt,
		ActiveTarget:    -1,
		Players:         make(map[string]PlayerSession),
	}

	r.mu.Lock()
	if _, dup := r.byServer[reg.ServerID]; dup {
		r.mu.Unlock()
		r.failRegistration(ctx, reg, ErrDuplicateServerID.Error())
		return nil, ErrDuplicateServerID
	}
	r.byServer[reg.ServerID] = server
	snapshot := server.clone()
	r.mu.Unlock()

	r.log.Info().
		Uint64("server_id", reg.ServerID).
		Str("external", reg.ExternalAddress).
		Uint16("port", reg.Port).
		Int64("region", reg.RegionSymbol).
		Msg("Game server registered")
	r.emit(ctx, events.EventGameServerRegistered, events.GameServerPayload{
		ServerID:        reg.ServerID,
		ExternalAddress: reg.ExternalAddress,
		Port:            reg.Port,
		RegionSymbol:    reg.RegionSymbol,
		VersionLock:     reg.VersionLock,
	})
	return snapshot, nil
}

// Unregister removes a server from both indices. Unregistering an
// unknown id is a no-op.
func (r *Registry) Unregister(ctx context.Context, serverID uint64) {
	r.mu.Lock()
	server, ok := r.byServer[serverID]
	if ok {
		if server.SessionStarted {
			delete(r.bySession, server.SessionID)
		}
		delete(r.byServer, serverID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.log.Info().Uint64("server_id", serverID).Msg("Game server unregistered")
	r.emit(ctx, events.EventGameServerUnregistered, events.GameServerPayload{
		ServerID:        server.ServerID,
		ExternalAddress: server.ExternalAddress,
		Port:            server.Port,
		RegionSymbol:    server.RegionSymbol,
		VersionLock:     server.VersionLock,
		SessionID:       server.SessionID,
	})
}

// UnregisterByPeer removes every server registered by the given peer,
// releasing both indices. Used when a registry connection drops.
func (r *Registry) UnregisterByPeer(ctx context.Context, peerID string) {
	r.mu.Lock()
	var ids []uint64
	for id, server := range r.byServer {
		if server.PeerID == peerID {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unregister(ctx, id)
	}
}

// StartSession moves a registered server into the active-session state
// and inserts it into the session index.
func (r *Registry) StartSession(ctx context.Context, serverID uint64, start SessionStart) error {
	r.mu.Lock()
	server, ok := r.byServer[serverID]
	switch {
	case !ok:
		r.mu.Unlock()
		return ErrNotRegistered
	case server.SessionStarted:
		r.mu.Unlock()
		return ErrSessionActive
	}
	if _, taken := r.bySession[start.SessionID]; taken {
		r.mu.Unlock()
		return ErrSessionIDCollision
	}

	server.SessionStarted = true
	server.SessionID = start.SessionID
	server.LobbyType = start.LobbyType
	server.LevelSymbol = start.LevelSymbol
	server.GameTypeSymbol = start.GameTypeSymbol
	server.Channel = start.Channel
	server.PlayerLimit = start.PlayerLimit
	server.ActiveTarget = start.ActiveTarget
	server.Locked = false
	server.Players = make(map[string]PlayerSession)
	server.SessionStartedAt = time.Now()
	r.bySession[start.SessionID] = server
	startedAt := server.SessionStartedAt
	r.mu.Unlock()

	r.log.Info().
		Uint64("server_id", serverID).
		Str("session_id", start.SessionID).
		Str("channel", start.Channel).
		Int("player_limit", start.PlayerLimit).
		Msg("Session started")
	r.emit(ctx, events.EventGameServerSessionStarted, events.SessionPayload{
		ServerID:  serverID,
		SessionID: start.SessionID,
		StartedAt: startedAt,
	})
	return nil
}

// EndSession clears a server's session fields and removes it from the
// session index. Ending when no session is active is a no-op.
func (r *Registry) EndSession(ctx context.Context, serverID uint64) {
	r.mu.Lock()
	server, ok := r.byServer[serverID]
	if !ok || !server.SessionStarted {
		r.mu.Unlock()
		return
	}
	sessionID := server.SessionID
	startedAt := server.SessionStartedAt
	delete(r.bySession, sessionID)
	server.clearSession()
	r.mu.Unlock()

	r.log.Info().
		Uint64("server_id", serverID).
		Str("session_id", sessionID).
		Msg("Session ended")
	r.emit(ctx, events.EventGameServerSessionEnded, events.SessionPayload{
		ServerID:  serverID,
		SessionID: sessionID,
		StartedAt: startedAt,
	})
}

// UpdateSessionState applies a partial update to an active session.
// The whole update is validated first; on any failure nothing is
// changed. Returns the slot ids of the requested joins, in request
// order.
func (r *Registry) UpdateSessionState(serverID uint64, update SessionUpdate) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	server, ok := r.byServer[serverID]
	switch {
	case !ok:
		return nil, ErrNotRegistered
	case !server.SessionStarted:
		return nil, ErrNoSession
	}

	leaving := make(map[string]bool, len(update.Leaves))
	for _, slot := range update.Leaves {
		if _, ok := server.Players[slot]; !ok {
			return nil, fmt.Errorf("leave slot %s: %w", slot, ErrUnknownSlot)
		}
		leaving[slot] = true
	}
	for _, move := range update.Moves {
		if _, ok := server.Players[move.SlotID]; !ok || leaving[move.SlotID] {
			return nil, fmt.Errorf("move slot %s: %w", move.SlotID, ErrUnknownSlot)
		}
	}
	for _, join := range update.Joins {
		if join.SlotID == "" {
			continue
		}
		if _, taken := server.Players[join.SlotID]; taken && !leaving[join.SlotID] {
			return nil, fmt.Errorf("join slot %s: %w", join.SlotID, ErrSlotOccupied)
		}
	}
	if after := len(server.Players) - len(leaving) + len(update.Joins); after > server.PlayerLimit {
		return nil, ErrSessionFull
	}

	for _, slot := range update.Leaves {
		delete(server.Players, slot)
	}
	for _, move := range update.Moves {
		ps := server.Players[move.SlotID]
		ps.Team = move.Team
		server.Players[move.SlotID] = ps
	}
	assigned := make([]string, 0, len(update.Joins))
	for _, join := range update.Joins {
		slot := join.SlotID
		if slot == "" {
			slot = uuid.NewString()
		}
		server.Players[slot] = PlayerSession{SlotID: slot, PeerID: join.PeerID, Team: join.Team}
		assigned = append(assigned, slot)
	}
	if update.Lock != nil {
		server.Locked = *update.Lock
	}
	return assigned, nil
}

// Lookup returns a copy of the record for a server id.
func (r *Registry) Lookup(serverID uint64) (*RegisteredGameServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	server, ok := r.byServer[serverID]
	if !ok {
		return nil, false
	}
	return server.clone(), true
}

// LookupBySession returns a copy of the record hosting a session id.
func (r *Registry) LookupBySession(sessionID string) (*RegisteredGameServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	server, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	return server.clone(), true
}

// Snapshot returns copies of every registered server ordered by server
// id. Concurrent registry writes never show through the returned
// records.
func (r *Registry) Snapshot() []*RegisteredGameServer {
	r.mu.Lock()
	servers := make([]*RegisteredGameServer, 0, len(r.byServer))
	for _, server := range r.byServer {
		servers = append(servers, server.clone())
	}
	r.mu.Unlock()

	sort.Slice(servers, func(i, j int) bool { return servers[i].ServerID < servers[j].ServerID })
	return servers
}

// Counts reports how many servers are registered and how many have an
// active session.
func (r *Registry) Counts() (servers, sessions int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byServer), len(r.bySession)
}

func (r *Registry) failRegistration(ctx context.Context, reg Registration, reason string) {
	r.log.Warn().
		Uint64("server_id", reg.ServerID).
		Str("external", reg.ExternalAddress).
		Str("reason", reason).
		Msg("Game server registration rejected")
	r.emit(ctx, events.EventGameServerRegistrationFail, events.RegistrationFailurePayload{
		ServerID:   reg.ServerID,
		RemoteAddr: reg.ExternalAddress,
		Reason:     reason,
	})
}

func (r *Registry) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(ctx, events.Event{Type: eventType, Source: "registry", Payload: payload})
}
