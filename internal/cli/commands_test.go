package cli

import (
	"context"
	"testing"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/symbol"
)

func newTestCLI(t *testing.T) (*CLI, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry(nil, registry.Options{})
	symbols := symbol.NewCache()
	if err := symbols.Add(101, "na-east"); err != nil {
		t.Fatal(err)
	}
	return NewCLI(config.DefaultConfig(), events.NewEventBus(), nil, reg, symbols), reg
}

func TestSessionCommands(t *testing.T) {
	c, reg := newTestCLI(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, registry.Registration{
		ServerID:        1,
		PeerID:          "host",
		InternalAddress: "10.0.0.9",
		ExternalAddress: "203.0.113.9",
		Port:            6792,
		RegionSymbol:    101,
	}); err != nil {
		t.Fatal(err)
	}
	if err := reg.StartSession(ctx, 1, registry.SessionStart{
		SessionID:   "sess-1",
		PlayerLimit: 8,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.UpdateSessionState(1, registry.SessionUpdate{
		Joins: []registry.PlayerJoin{{PeerID: "user-1", Team: 0}},
	}); err != nil {
		t.Fatal(err)
	}

	t.Run("list", func(t *testing.T) {
		if err := c.printSessions(nil); err != nil {
			t.Fatalf("printSessions: %v", err)
		}
	})

	t.Run("detail", func(t *testing.T) {
		if err := c.printSessions([]string{"sess-1"}); err != nil {
			t.Fatalf("session detail: %v", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		if err := c.printSessions([]string{"sess-404"}); err == nil {
			t.Error("expected an error for an unknown session id")
		}
	})
}

func TestSymbolCommand(t *testing.T) {
	c, _ := newTestCLI(t)
	ctx := context.Background()

	if err := c.execute(ctx, "symbol", []string{"na-east"}); err != nil {
		t.Fatalf("name lookup: %v", err)
	}
	if err := c.execute(ctx, "symbol", []string{"101"}); err != nil {
		t.Fatalf("numeric lookup: %v", err)
	}
	if err := c.execute(ctx, "symbol", []string{"999"}); err == nil {
		t.Error("expected an error for an unknown numeric symbol")
	}
	if err := c.execute(ctx, "symbol", nil); err == nil {
		t.Error("expected a usage error without arguments")
	}
}
