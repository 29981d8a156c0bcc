package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arclight-project/arclight/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "arclight",
		"version": "1.0.0",
	})
}

// handleServerInfo returns basic relay information.
func (s *Server) handleServerInfo(c *gin.Context) {
	relayData := s.cfg.GetRelayData()
	sysInfo := util.GetSystemInfo()
	servers, sessions := s.registry.Counts()

	info := gin.H{
		"relay_port":         relayData.Port,
		"registered_servers": servers,
		"active_sessions":    sessions,
		"known_symbols":      0,
		"hostname":           sysInfo.Hostname,
		"os":                 sysInfo.OS,
		"cpu_model":          sysInfo.CPUModel,
		"cpu_cores":          sysInfo.CPUCores,
		"total_memory_mb":    sysInfo.TotalMemory,
	}
	if s.symbols != nil {
		info["known_symbols"] = s.symbols.Count()
	}
	if s.relay != nil {
		info["public_ip"] = s.relay.PublicAddress()
	}
	c.JSON(http.StatusOK, info)
}

// handlePeerStats returns connected peer counts per service.
func (s *Server) handlePeerStats(c *gin.Context) {
	if s.relay == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.relay.PeerStats())
}
