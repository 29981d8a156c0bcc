package service

import (
	"context"
	"errors"
	"time"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/matching"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/storage"
)

// NewMatchingService builds the matchmaking endpoint. Peers handshake
// with the same login request as the login service, then submit
// find-session requests against the matchmaker.
func NewMatchingService(bus *events.EventBus, store storage.Store, mm *matching.Matchmaker, policy DuplicateAuthPolicy) *Service {
	s := NewService("matching", bus)
	s.SetDuplicatePolicy(policy)
	s.AllowPreAuth(protocol.SymLoginRequest)
	s.Handle(protocol.SymLoginRequest, loginHandler(s, store))
	s.Handle(protocol.SymFindSessionRequest, findSessionHandler(s, mm))
	return s
}

func findSessionHandler(s *Service, mm *matching.Matchmaker) HandlerFunc {
	return func(ctx context.Context, peer *Peer, msg protocol.Message) error {
		req := msg.(*protocol.FindSessionRequest)

		assignment, err := mm.Match(ctx, matching.Request{
			PeerID:         peer.ID,
			VersionLock:    req.VersionLock,
			LobbyType:      req.LobbyType,
			RegionSymbol:   req.RegionSymbol,
			GameTypeSymbol: req.GameTypeSymbol,
			LevelSymbol:    req.LevelSymbol,
			Channel:        req.Channel,
			Team:           req.Team,
			ReceivedAt:     time.Now(),
		})
		if errors.Is(err, matching.ErrNoCapacity) {
			return peer.Send(&protocol.MatchFailure{Reason: "no session available"})
		}
		if err != nil {
			s.log.Error().Err(err).Str("peer_id", peer.ID).Msg("Matchmaking failed")
			return peer.Send(&protocol.MatchFailure{Reason: "internal error"})
		}

		return peer.Send(&protocol.MatchSuccess{
			ServerID:  assignment.ServerID,
			SessionID: assignment.SessionID,
			Endpoint:  assignment.Endpoint,
			Port:      assignment.Port,
			SlotID:    assignment.SlotID,
			Team:      assignment.Team,
		})
	}
}
