package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arclight-project/arclight/internal/matching"
	"github.com/arclight-project/arclight/internal/protocol"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/service"
	"github.com/arclight-project/arclight/internal/storage"
)

func newTestRelay(t *testing.T, serverDBKey string) (*Server, *httptest.Server) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "arclight.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.NewRegistry(nil, registry.Options{})
	mm := matching.NewMatchmaker(reg, matching.Options{})
	services := Services{
		Login:       service.NewLoginService(nil, store, service.DuplicateEvict),
		Config:      service.NewConfigService(nil, store),
		Matching:    service.NewMatchingService(nil, store, mm, service.DuplicateEvict),
		Transaction: service.NewTransactionService(nil, store),
		ServerDB:    service.NewServerDBService(nil, reg, serverDBKey),
	}
	relay := NewServer(0, services, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(relay.Handler(ctx))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return relay, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func roundTrip(t *testing.T, conn *websocket.Conn, req protocol.Message) protocol.Message {
	t.Helper()
	frame, err := protocol.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var dec protocol.Decoder
	dec.Feed(data)
	msg, err := dec.Next()
	if err != nil || msg == nil {
		t.Fatalf("decode response: %v (%v)", msg, err)
	}
	return msg
}

func TestRelayLoginPath(t *testing.T) {
	_, ts := newTestRelay(t, "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/login"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := roundTrip(t, conn, &protocol.LoginRequest{UserID: "OVR-ORG-1", DisplayName: "pilot"})
	if _, ok := msg.(*protocol.LoginSuccess); !ok {
		t.Fatalf("got %T, want LoginSuccess", msg)
	}
}

func TestRelayServerDBKeyGate(t *testing.T) {
	t.Run("bad key refused before upgrade", func(t *testing.T) {
		_, ts := newTestRelay(t, "sekrit")
		resp, err := http.Get(ts.URL + "/serverdb?api_key=wrong")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("good key upgrades and registers", func(t *testing.T) {
		relay, ts := newTestRelay(t, "sekrit")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/serverdb?api_key=sekrit"), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		msg := roundTrip(t, conn, &protocol.RegistrationRequest{ServerID: 9, Port: 6792})
		if _, ok := msg.(*protocol.RegistrationSuccess); !ok {
			t.Fatalf("got %T, want RegistrationSuccess", msg)
		}
		stats := relay.PeerStats()
		if stats["serverdb"] != 1 {
			t.Errorf("peer stats = %v", stats)
		}
	})
}

func TestRelayPeerStatsCoversAllServices(t *testing.T) {
	relay, _ := newTestRelay(t, "")
	stats := relay.PeerStats()
	for _, name := range []string{"login", "config", "matching", "transaction", "serverdb"} {
		if _, ok := stats[name]; !ok {
			t.Errorf("stats missing service %s", name)
		}
	}
}
