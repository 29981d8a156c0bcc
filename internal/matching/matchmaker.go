package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/util"
)

// ErrNoCapacity means no eligible session could take the requester.
// It is a retryable outcome, not a protocol failure.
var ErrNoCapacity = errors.New("no session with capacity matches the request")

// Request is one player's transient matchmaking request. Zero values
// mean "no constraint" for the optional fields.
type Request struct {
	PeerID         string
	VersionLock    int64
	LobbyType      uint8
	RegionSymbol   int64
	GameTypeSymbol int64
	LevelSymbol    int64
	Channel        string
	Team           int16
	ReceivedAt     time.Time
}

// Assignment is a resolved match: the requester has been granted a slot
// in the session on the named server.
type Assignment struct {
	ServerID  uint64
	SessionID string
	Endpoint  string
	Port      uint16
	SlotID    string
	Team      int16
}

// Options sets matchmaking policy.
//
// MaxArenaAge, when non-nil, excludes sessions whose start time is
// older than the cutoff. A cutoff of zero therefore excludes every
// running session; a nil pointer disables the check entirely.
type Options struct {
	ForceMatching   bool
	FavorPopulation bool
	MaxArenaAge     *time.Duration
}

// Matchmaker turns match requests into session assignments using the
// registry's current snapshot.
type Matchmaker struct {
	registry *registry.Registry
	opts     Options
	log      zerolog.Logger
}

func NewMatchmaker(reg *registry.Registry, opts Options) *Matchmaker {
	return &Matchmaker{
		registry: reg,
		opts:     opts,
		log:      util.ComponentLogger("matching"),
	}
}

// Match filters and ranks the current sessions, then joins the best
// candidate. A join lost to a concurrent request falls through to the
// next-ranked candidate instead of failing the whole request.
func (m *Matchmaker) Match(ctx context.Context, req Request) (*Assignment, error) {
	snapshot := m.registry.Snapshot()
	now := time.Now()

	candidates := m.filter(snapshot, req, now, false)
	if len(candidates) == 0 && m.opts.ForceMatching {
		m.log.Debug().Str("peer_id", req.PeerID).Msg("No strict candidates, running relaxed pass")
		candidates = m.filter(snapshot, req, now, true)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCapacity
	}

	m.rank(candidates)

	for _, candidate := range candidates {
		slots, err := m.registry.UpdateSessionState(candidate.ServerID, registry.SessionUpdate{
			Joins: []registry.PlayerJoin{{PeerID: req.PeerID, Team: req.Team}},
		})
		if err != nil {
			m.log.Debug().
				Uint64("server_id", candidate.ServerID).
				Err(err).
				Msg("Lost join race, trying next candidate")
			continue
		}
		m.log.Info().
			Str("peer_id", req.PeerID).
			Uint64("server_id", candidate.ServerID).
			Str("session_id", candidate.SessionID).
			Str("slot", slots[0]).
			Msg("Match resolved")
		return &Assignment{
			ServerID:  candidate.ServerID,
			SessionID: candidate.SessionID,
			Endpoint:  candidate.ExternalAddress,
			Port:      candidate.Port,
			SlotID:    slots[0],
			Team:      req.Team,
		}, nil
	}
	return nil, ErrNoCapacity
}

// filter keeps sessions the request could join. The relaxed pass drops
// the region, version-lock, and channel constraints.
func (m *Matchmaker) filter(snapshot []*registry.RegisteredGameServer, req Request, now time.Time, relaxed bool) []*registry.RegisteredGameServer {
	var out []*registry.RegisteredGameServer
	for _, server := range snapshot {
		if !server.SessionStarted || server.Locked {
			continue
		}
		if server.LobbyType != req.LobbyType {
			continue
		}
		if server.PlayerCount() >= server.PlayerLimit {
			continue
		}
		if m.opts.MaxArenaAge != nil && now.Sub(server.SessionStartedAt) > *m.opts.MaxArenaAge {
			continue
		}
		if !relaxed {
			if req.RegionSymbol != 0 && server.RegionSymbol != req.RegionSymbol {
				continue
			}
			if server.VersionLock != req.VersionLock {
				continue
			}
			if req.Channel != "" && server.Channel != req.Channel {
				continue
			}
		}
		out = append(out, server)
	}
	return out
}

// rank orders candidates best first. Population mode fills fuller
// sessions first; ping mode prefers the lowest measured latency. Ties
// go to the oldest session.
func (m *Matchmaker) rank(candidates []*registry.RegisteredGameServer) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if m.opts.FavorPopulation {
			if a.PlayerCount() != b.PlayerCount() {
				return a.PlayerCount() > b.PlayerCount()
			}
		} else {
			if a.RTT != b.RTT {
				return a.RTT < b.RTT
			}
		}
		return a.SessionStartedAt.Before(b.SessionStartedAt)
	})
}
