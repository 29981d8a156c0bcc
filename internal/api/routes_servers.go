package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arclight-project/arclight/internal/registry"
)

// ServerInfo is the external view of a registered game server.
type ServerInfo struct {
	ServerID        uint64 `json:"serverId"`
	InternalAddress string `json:"internalAddress"`
	ExternalAddress string `json:"externalAddress"`
	Port            uint16 `json:"port"`
	RegionSymbol    int64  `json:"regionSymbol"`
	Region          string `json:"region,omitempty"`
	VersionLock     int64  `json:"versionLock"`
	SessionID       string `json:"sessionId,omitempty"`
}

// SessionInfo is the external view of an active session.
type SessionInfo struct {
	SessionID         string           `json:"sessionId"`
	ServerID          uint64           `json:"serverId"`
	LobbyType         uint8            `json:"lobbyType"`
	GameTypeSymbol    int64            `json:"gameTypeSymbol"`
	GameType          string           `json:"gameType,omitempty"`
	LevelSymbol       int64            `json:"levelSymbol"`
	Level             string           `json:"level,omitempty"`
	Channel           string           `json:"channel,omitempty"`
	PlayerLimit       int              `json:"playerLimit"`
	ActivePlayerLimit *int             `json:"activePlayerLimit,omitempty"`
	Locked            bool             `json:"locked"`
	PlayerCount       int              `json:"playerCount"`
	PlayerSessions    []PlayerSlotInfo `json:"playerSessions"`
}

// PlayerSlotInfo is one occupied slot in a session.
type PlayerSlotInfo struct {
	SlotID string `json:"slotId"`
	UserID string `json:"userId"`
	Team   int16  `json:"team"`
}

func (s *Server) serverInfo(server *registry.RegisteredGameServer) ServerInfo {
	info := ServerInfo{
		ServerID:        server.ServerID,
		InternalAddress: server.InternalAddress,
		ExternalAddress: server.ExternalAddress,
		Port:            server.Port,
		RegionSymbol:    server.RegionSymbol,
		VersionLock:     server.VersionLock,
	}
	if server.SessionStarted {
		info.SessionID = server.SessionID
	}
	if s.symbols != nil {
		if name, ok := s.symbols.Name(server.RegionSymbol); ok {
			info.Region = name
		}
	}
	return info
}

func (s *Server) sessionInfo(server *registry.RegisteredGameServer) SessionInfo {
	info := SessionInfo{
		SessionID:      server.SessionID,
		ServerID:       server.ServerID,
		LobbyType:      server.LobbyType,
		GameTypeSymbol: server.GameTypeSymbol,
		LevelSymbol:    server.LevelSymbol,
		Channel:        server.Channel,
		PlayerLimit:    server.PlayerLimit,
		Locked:         server.Locked,
		PlayerCount:    server.PlayerCount(),
		PlayerSessions: make([]PlayerSlotInfo, 0, len(server.Players)),
	}
	if server.ActiveTarget >= 0 {
		target := server.ActiveTarget
		info.ActivePlayerLimit = &target
	}
	for _, ps := range server.Players {
		info.PlayerSessions = append(info.PlayerSessions, PlayerSlotInfo{
			SlotID: ps.SlotID,
			UserID: ps.PeerID,
			Team:   ps.Team,
		})
	}
	if s.symbols != nil {
		if name, ok := s.symbols.Name(server.GameTypeSymbol); ok {
			info.GameType = name
		}
		if name, ok := s.symbols.Name(server.LevelSymbol); ok {
			info.Level = name
		}
	}
	return info
}

// handleListServers returns a page of registered servers ordered by
// server id.
func (s *Server) handleListServers(c *gin.Context) {
	snapshot := s.registry.Snapshot()
	infos := make([]ServerInfo, 0, len(snapshot))
	for _, server := range snapshot {
		infos = append(infos, s.serverInfo(server))
	}

	page, size := pagination(c)
	c.JSON(http.StatusOK, gin.H{
		"servers":    paginate(infos, page, size),
		"pageNumber": page,
		"pageSize":   size,
		"totalCount": len(infos),
	})
}

func (s *Server) handleGetServer(c *gin.Context) {
	serverID, err := strconv.ParseUint(c.Param("serverId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serverId must be numeric"})
		return
	}
	server, ok := s.registry.Lookup(serverID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "server not registered"})
		return
	}
	c.JSON(http.StatusOK, s.serverInfo(server))
}

// handleListSessions returns a page of active sessions.
func (s *Server) handleListSessions(c *gin.Context) {
	var infos []SessionInfo
	for _, server := range s.registry.Snapshot() {
		if server.SessionStarted {
			infos = append(infos, s.sessionInfo(server))
		}
	}
	if infos == nil {
		infos = []SessionInfo{}
	}

	page, size := pagination(c)
	c.JSON(http.StatusOK, gin.H{
		"sessions":   paginate(infos, page, size),
		"pageNumber": page,
		"pageSize":   size,
		"totalCount": len(infos),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	server, ok := s.registry.LookupBySession(c.Param("sessionId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s.sessionInfo(server))
}
