package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/registry"
)

// ServerDBService is the game-server registry endpoint. Dedicated
// servers register here and report session lifecycle changes; a
// disconnect unregisters everything the connection owned.
type ServerDBService struct {
	*Service
	registry *registry.Registry
	apiKey   string
}

func NewServerDBService(bus *events.EventBus, reg *registry.Registry, apiKey string) *ServerDBService {
	sdb := &ServerDBService{
		Service:  NewService("serverdb", bus),
		registry: reg,
		apiKey:   apiKey,
	}
	sdb.AllowPreAuth(protocol.SymRegistrationRequest)
	sdb.Handle(protocol.SymRegistrationRequest, sdb.handleRegistration)
	sdb.Handle(protocol.SymSessionStartNotify, sdb.handleSessionStart)
	sdb.Handle(protocol.SymSessionEndNotify, sdb.handleSessionEnd)
	sdb.Handle(protocol.SymPlayerJoinNotify, sdb.handlePlayerJoin)
	sdb.Handle(protocol.SymPlayerLeaveNotify, sdb.handlePlayerLeave)
	sdb.Handle(protocol.SymSessionLockNotify, sdb.handleSessionLock)
	sdb.OnPeerCleanup(func(ctx context.Context, peer *Peer) {
		reg.UnregisterByPeer(ctx, peer.ID)
	})
	return sdb
}

// AuthorizeKey gates connection admission when an api key is
// configured. The relay checks the key the server presented at connect
// time before handing the connection to this service.
func (sdb *ServerDBService) AuthorizeKey(presented string) bool {
	if sdb.apiKey == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(sdb.apiKey), []byte(presented)) == 1
}

func (sdb *ServerDBService) handleRegistration(ctx context.Context, peer *Peer, msg protocol.Message) error {
	req := msg.(*protocol.RegistrationRequest)

	server, err := sdb.registry.Register(ctx, registry.Registration{
		ServerID:        req.ServerID,
		PeerID:          peer.ID,
		InternalAddress: req.InternalAddress,
		ExternalAddress: peer.RemoteHost(),
		Port:            req.Port,
		RegionSymbol:    req.RegionSymbol,
		VersionLock:     req.VersionLock,
	})
	if err != nil {
		return peer.Send(&protocol.RegistrationFailure{Reason: err.Error()})
	}

	peer.SetSessionData(server.ServerID)
	if err := sdb.Authenticate(ctx, peer, "server-"+strconv.FormatUint(server.ServerID, 10), ""); err != nil {
		sdb.registry.Unregister(ctx, server.ServerID)
		return err
	}
	return peer.Send(&protocol.RegistrationSuccess{
		ServerID:        server.ServerID,
		ExternalAddress: server.ExternalAddress,
	})
}

// registeredServerID resolves which server a registry connection speaks
// for. Session messages before registration are protocol violations.
func registeredServerID(peer *Peer) (uint64, error) {
	id, ok := peer.SessionData().(uint64)
	if !ok {
		return 0, errors.New("session message from unregistered connection")
	}
	return id, nil
}

func (sdb *ServerDBService) handleSessionStart(ctx context.Context, peer *Peer, msg protocol.Message) error {
	req := msg.(*protocol.SessionStartNotify)
	serverID, err := registeredServerID(peer)
	if err != nil {
		return err
	}

	err = sdb.registry.StartSession(ctx, serverID, registry.SessionStart{
		SessionID:      req.SessionID,
		LobbyType:      req.LobbyType,
		LevelSymbol:    req.LevelSymbol,
		GameTypeSymbol: req.GameTypeSymbol,
		Channel:        req.Channel,
		PlayerLimit:    int(req.PlayerLimit),
		ActiveTarget:   int(req.ActiveTarget),
	})
	if err != nil {
		sdb.log.Warn().Uint64("server_id", serverID).Err(err).Msg("Session start rejected")
		return peer.Send(&protocol.RegistrationFailure{Reason: fmt.Sprintf("session start: %v", err)})
	}
	return nil
}

func (sdb *ServerDBService) handleSessionEnd(ctx context.Context, peer *Peer, msg protocol.Message) error {
	serverID, err := registeredServerID(peer)
	if err != nil {
		return err
	}
	sdb.registry.EndSession(ctx, serverID)
	return nil
}

func (sdb *ServerDBService) handlePlayerJoin(ctx context.Context, peer *Peer, msg protocol.Message) error {
	req := msg.(*protocol.PlayerJoinNotify)
	serverID, err := registeredServerID(peer)
	if err != nil {
		return err
	}

	_, err = sdb.registry.UpdateSessionState(serverID, registry.SessionUpdate{
		Joins: []registry.PlayerJoin{{SlotID: req.SlotID, PeerID: req.UserID, Team: req.Team}},
	})
	if err != nil {
		sdb.log.Warn().Uint64("server_id", serverID).Err(err).Msg("Player join rejected")
	}
	return nil
}

func (sdb *ServerDBService) handlePlayerLeave(ctx context.Context, peer *Peer, msg protocol.Message) error {
	req := msg.(*protocol.PlayerLeaveNotify)
	serverID, err := registeredServerID(peer)
	if err != nil {
		return err
	}

	_, err = sdb.registry.UpdateSessionState(serverID, registry.SessionUpdate{
		Leaves: []string{req.SlotID},
	})
	if err != nil {
		sdb.log.Warn().Uint64("server_id", serverID).Err(err).Msg("Player leave rejected")
	}
	return nil
}

func (sdb *ServerDBService) handleSessionLock(ctx context.Context, peer *Peer, msg protocol.Message) error {
	req := msg.(*protocol.SessionLockNotify)
	serverID, err := registeredServerID(peer)
	if err != nil {
		return err
	}

	_, err = sdb.registry.UpdateSessionState(serverID, registry.SessionUpdate{Lock: &req.Locked})
	if err != nil {
		sdb.log.Warn().Uint64("server_id", serverID).Err(err).Msg("Session lock rejected")
	}
	return nil
}
