package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/service"
	"github.com/arclight-project/arclight/internal/util"
)

// Services bundles the endpoints the relay exposes, one websocket path
// each.
type Services struct {
	Login       *service.Service
	Config      *service.Service
	Matching    *service.Service
	Transaction *service.Service
	ServerDB    *service.ServerDBService
}

// Server is the relay front door: one TCP port, one HTTP server, a
// websocket upgrade per service path.
type Server struct {
	port          int
	services      Services
	bus           *events.EventBus
	log           zerolog.Logger
	statsInterval time.Duration

	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.Mutex
	publicIP string
}

func NewServer(port int, services Services, bus *events.EventBus, statsInterval time.Duration) *Server {
	return &Server{
		port:          port,
		services:      services,
		bus:           bus,
		log:           util.ComponentLogger("relay"),
		statsInterval: statsInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the path-per-service websocket mux.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", s.serveWS(ctx, s.services.Login))
	mux.HandleFunc("/config", s.serveWS(ctx, s.services.Config))
	mux.HandleFunc("/matching", s.serveWS(ctx, s.services.Matching))
	mux.HandleFunc("/transaction", s.serveWS(ctx, s.services.Transaction))
	mux.HandleFunc("/serverdb", s.serveServerDB(ctx))
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(s.port),
		Handler: s.Handler(ctx),
	}

	go func() {
		if ip := util.DetectPublicIP(ctx); ip != "" {
			s.mu.Lock()
			s.publicIP = ip
			s.mu.Unlock()
			s.log.Info().Str("public_ip", ip).Msg("Detected public address")
		}
	}()

	if s.statsInterval > 0 {
		go s.statsLoop(ctx)
	}

	s.log.Info().Int("port", s.port).Msg("Relay listening")
	s.emit(ctx, events.EventRelayStarted, events.RelayStatusPayload{
		ListenAddr: s.httpServer.Addr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay listen on port %d: %w", s.port, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("Relay shutdown incomplete")
	}
	s.log.Info().Msg("Relay stopped")
	s.emit(context.Background(), events.EventRelayStopped, events.RelayStatusPayload{
		ListenAddr: s.httpServer.Addr,
	})
	return nil
}

// PublicAddress reports the detected public IP, or "" before detection
// completes.
func (s *Server) PublicAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicIP
}

// PeerStats reports connected peer counts per service.
func (s *Server) PeerStats() map[string]int {
	stats := make(map[string]int, 5)
	for _, svc := range s.allServices() {
		stats[svc.Name()] = svc.PeerCount()
	}
	return stats
}

func (s *Server) allServices() []*service.Service {
	return []*service.Service{
		s.services.Login,
		s.services.Config,
		s.services.Matching,
		s.services.Transaction,
		s.services.ServerDB.Service,
	}
}

func (s *Server) serveWS(ctx context.Context, svc *service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Upgrade failed")
			return
		}
		svc.HandlePeer(ctx, conn)
	}
}

// serveServerDB gates the registry endpoint on the configured api key
// before upgrading. The key travels as a query parameter or header so
// servers are refused before they cost a websocket.
func (s *Server) serveServerDB(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("api_key")
		if key == "" {
			key = r.Header.Get("X-Api-Key")
		}
		authorized := s.services.ServerDB.AuthorizeKey(key)
		s.emit(ctx, events.EventAuthorizationResult, events.AuthorizationPayload{
			ServiceName: s.services.ServerDB.Name(),
			RemoteAddr:  r.RemoteAddr,
			Authorized:  authorized,
		})
		if !authorized {
			s.log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Server registration refused, bad api key")
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Debug().Err(err).Msg("Upgrade failed")
			return
		}
		s.services.ServerDB.HandlePeer(ctx, conn)
	}
}

func (s *Server) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			event := s.log.Info()
			for name, count := range s.PeerStats() {
				event = event.Int(name, count)
			}
			event.Msg("Peer stats")
		}
	}
}

func (s *Server) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{Type: eventType, Source: "relay", Payload: payload})
}
