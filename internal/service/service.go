package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/util"
)

// DuplicateAuthPolicy decides what happens when an identity that is
// already authenticated on a service authenticates again.
type DuplicateAuthPolicy string

const (
	// DuplicateEvict drops the previous connection and admits the new one.
	DuplicateEvict DuplicateAuthPolicy = "evict"
	// DuplicateReject refuses the new connection.
	DuplicateReject DuplicateAuthPolicy = "reject"
)

// ErrDuplicateIdentity is returned by Authenticate under the reject
// policy when the identity is already connected.
var ErrDuplicateIdentity = errors.New("identity already authenticated on this service")

// HandlerFunc processes one decoded message for a peer. A returned
// error is a protocol-level failure and closes the connection; handlers
// report application failures to the peer themselves and return nil.
type HandlerFunc func(ctx context.Context, peer *Peer, msg protocol.Message) error

// Service is a named endpoint. It owns its connected peers, a handler
// table keyed by message type symbol, and the authentication policy for
// the endpoint.
type Service struct {
	name string
	bus  *events.EventBus
	log  zerolog.Logger

	mu    sync.Mutex
	peers map[string]*Peer

	handlers        map[int64]HandlerFunc
	preAuth         map[int64]bool
	authRequired    bool
	duplicatePolicy DuplicateAuthPolicy
	cleanup         func(ctx context.Context, peer *Peer)
}

func NewService(name string, bus *events.EventBus) *Service {
	return &Service{
		name:            name,
		bus:             bus,
		log:             util.ComponentLogger("service." + name),
		peers:           make(map[string]*Peer),
		handlers:        make(map[int64]HandlerFunc),
		preAuth:         make(map[int64]bool),
		authRequired:    true,
		duplicatePolicy: DuplicateEvict,
	}
}

func (s *Service) Name() string { return s.name }

// Handle registers the handler for a message type symbol.
func (s *Service) Handle(symbol int64, h HandlerFunc) {
	s.handlers[symbol] = h
}

// AllowPreAuth marks a symbol as part of the handshake, deliverable to
// an unauthenticated peer.
func (s *Service) AllowPreAuth(symbol int64) {
	s.preAuth[symbol] = true
}

// NoAuth disables the authentication gate entirely; every registered
// handler is reachable from connect.
func (s *Service) NoAuth() {
	s.authRequired = false
}

// SetDuplicatePolicy selects evict or reject behavior for duplicate
// identity authentication.
func (s *Service) SetDuplicatePolicy(p DuplicateAuthPolicy) {
	if p == DuplicateEvict || p == DuplicateReject {
		s.duplicatePolicy = p
	}
}

// OnPeerCleanup runs after a peer leaves the peer set, releasing any
// registry or matchmaking state it held.
func (s *Service) OnPeerCleanup(fn func(ctx context.Context, peer *Peer)) {
	s.cleanup = fn
}

// PeerCount reports the number of connected peers.
func (s *Service) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Peers returns the current peers as a snapshot slice.
func (s *Service) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Authenticate marks the peer authenticated after applying the
// duplicate-identity policy. Under evict the previous connection is
// closed; under reject ErrDuplicateIdentity is returned and the new
// peer stays unauthenticated.
func (s *Service) Authenticate(ctx context.Context, peer *Peer, userID, displayName string) error {
	var evicted *Peer
	s.mu.Lock()
	for _, other := range s.peers {
		if other == peer || !other.Authenticated() {
			continue
		}
		if otherID, _ := other.Identity(); otherID == userID {
			if s.duplicatePolicy == DuplicateReject {
				s.mu.Unlock()
				s.log.Warn().
					Str("user_id", userID).
					Str("remote_addr", peer.RemoteAddr()).
					Msg("Duplicate authentication rejected")
				return ErrDuplicateIdentity
			}
			evicted = other
			break
		}
	}
	s.mu.Unlock()

	if evicted != nil {
		s.log.Warn().
			Str("user_id", userID).
			Str("evicted_addr", evicted.RemoteAddr()).
			Str("new_addr", peer.RemoteAddr()).
			Msg("Duplicate authentication, evicting previous connection")
		evicted.Close()
	}

	peer.authenticate(userID, displayName)
	s.emit(ctx, events.EventPeerAuthenticated, events.PeerPayload{
		ServiceName: s.name,
		PeerID:      peer.ID,
		RemoteAddr:  peer.RemoteAddr(),
		UserID:      userID,
		DisplayName: displayName,
	})
	return nil
}

// HandlePeer owns a connection for its lifetime: it adds the peer to
// the set, runs the read loop, and on any exit removes the peer and
// releases its state. Blocks until the connection is done.
func (s *Service) HandlePeer(ctx context.Context, conn Conn) {
	peer := newPeer(s, conn)

	s.mu.Lock()
	s.peers[peer.ID] = peer
	s.mu.Unlock()

	s.log.Debug().
		Str("peer_id", peer.ID).
		Str("remote_addr", peer.RemoteAddr()).
		Msg("Peer connected")
	s.emit(ctx, events.EventPeerConnected, events.PeerPayload{
		ServiceName: s.name,
		PeerID:      peer.ID,
		RemoteAddr:  peer.RemoteAddr(),
	})

	s.readLoop(ctx, peer)

	peer.Close()
	s.mu.Lock()
	delete(s.peers, peer.ID)
	s.mu.Unlock()

	if s.cleanup != nil {
		s.cleanup(ctx, peer)
	}

	userID, displayName := peer.Identity()
	s.log.Debug().
		Str("peer_id", peer.ID).
		Str("remote_addr", peer.RemoteAddr()).
		Msg("Peer disconnected")
	s.emit(ctx, events.EventPeerDisconnected, events.PeerPayload{
		ServiceName: s.name,
		PeerID:      peer.ID,
		RemoteAddr:  peer.RemoteAddr(),
		UserID:      userID,
		DisplayName: displayName,
	})
}

func (s *Service) readLoop(ctx context.Context, peer *Peer) {
	var decoder protocol.Decoder
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		decoder.Feed(data)

		for {
			msg, err := decoder.Next()
			if err != nil {
				var framingErr *protocol.FramingError
				if errors.As(err, &framingErr) {
					s.log.Warn().
						Str("peer_id", peer.ID).
						Str("remote_addr", peer.RemoteAddr()).
						Str("reason", framingErr.Reason).
						Msg("Framing error, closing connection")
				} else {
					s.log.Warn().
						Str("peer_id", peer.ID).
						Err(err).
						Msg("Decode error, closing connection")
				}
				return
			}
			if msg == nil {
				break
			}
			if !s.dispatch(ctx, peer, msg) {
				return
			}
		}
	}
}

// dispatch routes one decoded message. Returns false when the
// connection must close.
func (s *Service) dispatch(ctx context.Context, peer *Peer, msg protocol.Message) bool {
	symbol := msg.Symbol()
	s.observeReceived(peer, msg)

	if unknown, ok := msg.(*protocol.UnknownMessage); ok {
		s.log.Warn().
			Str("peer_id", peer.ID).
			Int64("symbol", unknown.TypeSymbol).
			Int("size", len(unknown.Payload)).
			Msg("Unknown message type, ignoring")
		return true
	}

	if s.authRequired && !peer.Authenticated() && !s.preAuth[symbol] {
		s.log.Warn().
			Str("peer_id", peer.ID).
			Str("type", protocol.TypeName(symbol)).
			Msg("Message before authentication, closing connection")
		return false
	}

	handler, ok := s.handlers[symbol]
	if !ok {
		s.log.Warn().
			Str("peer_id", peer.ID).
			Str("type", protocol.TypeName(symbol)).
			Msg("No handler for message type, ignoring")
		return true
	}
	if err := handler(ctx, peer, msg); err != nil {
		s.log.Warn().
			Str("peer_id", peer.ID).
			Str("type", protocol.TypeName(symbol)).
			Err(err).
			Msg("Handler failed, closing connection")
		return false
	}
	return true
}

func (s *Service) observeReceived(peer *Peer, msg protocol.Message) {
	s.emit(context.Background(), events.EventMessageReceived, events.MessagePayload{
		ServiceName: s.name,
		PeerID:      peer.ID,
		RemoteAddr:  peer.RemoteAddr(),
		TypeSymbol:  msg.Symbol(),
		TypeName:    protocol.TypeName(msg.Symbol()),
	})
}

func (s *Service) observeSent(peer *Peer, msg protocol.Message, size int) {
	s.emit(context.Background(), events.EventMessageSent, events.MessagePayload{
		ServiceName: s.name,
		PeerID:      peer.ID,
		RemoteAddr:  peer.RemoteAddr(),
		TypeSymbol:  msg.Symbol(),
		TypeName:    protocol.TypeName(msg.Symbol()),
		Size:        size,
	})
}

func (s *Service) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{Type: eventType, Source: "service." + s.name, Payload: payload})
}
