package service

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arclight-project/arclight/internal/protocol"
)

// Conn is the connection surface a Peer needs. *websocket.Conn
// satisfies it; tests substitute an in-memory fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Peer is one connection to a service. It is owned by the service's
// peer set from accept to disconnect; other components hold it only by
// reference for the duration of a single operation.
type Peer struct {
	ID          string
	ServiceName string

	conn    Conn
	service *Service
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	mu            sync.Mutex
	authenticated bool
	userID        string
	displayName   string
	sessionData   interface{}
}

func newPeer(svc *Service, conn Conn) *Peer {
	return &Peer{
		ID:          uuid.NewString(),
		ServiceName: svc.name,
		conn:        conn,
		service:     svc,
	}
}

// RemoteAddr reports the connection's remote endpoint.
func (p *Peer) RemoteAddr() string {
	if addr := p.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// RemoteHost reports the remote endpoint without the port.
func (p *Peer) RemoteHost() string {
	host, _, err := net.SplitHostPort(p.RemoteAddr())
	if err != nil {
		return p.RemoteAddr()
	}
	return host
}

// Send encodes and writes one message. Writes from concurrent handlers
// are serialized.
func (p *Peer) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", protocol.TypeName(msg.Symbol()), err)
	}

	p.writeMu.Lock()
	err = p.conn.WriteMessage(websocket.BinaryMessage, frame)
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write to %s: %w", p.RemoteAddr(), err)
	}

	p.service.observeSent(p, msg, len(frame))
	return nil
}

// Close shuts the underlying connection down. Safe to call more than
// once; the read loop notices and runs peer cleanup.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *Peer) authenticate(userID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = true
	p.userID = userID
	p.displayName = displayName
}

// Authenticated reports whether the handshake has completed.
func (p *Peer) Authenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// Identity returns the authenticated platform id and display name.
func (p *Peer) Identity() (userID, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID, p.displayName
}

// SetSessionData attaches service-scoped state to the peer, such as the
// server id a registry connection registered.
func (p *Peer) SetSessionData(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionData = v
}

// SessionData returns the service-scoped state, or nil.
func (p *Peer) SessionData() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionData
}
