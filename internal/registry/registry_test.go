package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubProbe struct {
	rtt   time.Duration
	err   error
	calls int
	mu    sync.Mutex
}

func (p *stubProbe) Probe(ctx context.Context, address string, port uint16) (time.Duration, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.rtt, p.err
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Probe == nil {
		opts.Probe = &stubProbe{rtt: 10 * time.Millisecond}
	}
	return NewRegistry(nil, opts)
}

func testRegistration(serverID uint64, peerID string) Registration {
	return Registration{
		ServerID:        serverID,
		PeerID:          peerID,
		InternalAddress: "10.0.0.5",
		ExternalAddress: "203.0.113.9",
		Port:            6792,
		RegionSymbol:    101,
		VersionLock:     4000,
	}
}

func mustRegister(t *testing.T, r *Registry, reg Registration) *RegisteredGameServer {
	t.Helper()
	server, err := r.Register(context.Background(), reg)
	if err != nil {
		t.Fatalf("Register(%d) failed: %v", reg.ServerID, err)
	}
	return server
}

func mustStartSession(t *testing.T, r *Registry, serverID uint64, start SessionStart) {
	t.Helper()
	if err := r.StartSession(context.Background(), serverID, start); err != nil {
		t.Fatalf("StartSession(%d) failed: %v", serverID, err)
	}
}

func TestRegisterUnregister(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, Options{})

	t.Run("index reflects registered set", func(t *testing.T) {
		mustRegister(t, r, testRegistration(1, "peer-a"))
		mustRegister(t, r, testRegistration(2, "peer-b"))
		mustRegister(t, r, testRegistration(3, "peer-c"))
		r.Unregister(ctx, 2)

		snap := r.Snapshot()
		if len(snap) != 2 || snap[0].ServerID != 1 || snap[1].ServerID != 3 {
			t.Fatalf("snapshot ids wrong: %+v", snap)
		}
		if _, ok := r.Lookup(2); ok {
			t.Error("unregistered server still resolvable")
		}
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		if _, err := r.Register(ctx, testRegistration(1, "peer-x")); !errors.Is(err, ErrDuplicateServerID) {
			t.Errorf("duplicate register: %v, want ErrDuplicateServerID", err)
		}
	})

	t.Run("unregister unknown id is a no-op", func(t *testing.T) {
		r.Unregister(ctx, 999)
	})

	t.Run("registration stores probe rtt", func(t *testing.T) {
		probe := &stubProbe{rtt: 25 * time.Millisecond}
		vr := newTestRegistry(t, Options{ValidateServers: true, Probe: probe})
		server := mustRegister(t, vr, testRegistration(7, "peer-v"))
		if server.RTT != 25*time.Millisecond {
			t.Errorf("RTT = %v", server.RTT)
		}
		if probe.calls != 1 {
			t.Errorf("probe calls = %d", probe.calls)
		}
	})

	t.Run("failed probe leaves nothing registered", func(t *testing.T) {
		probe := &stubProbe{err: errors.New("i/o timeout")}
		vr := newTestRegistry(t, Options{ValidateServers: true, Probe: probe})
		if _, err := vr.Register(ctx, testRegistration(8, "peer-w")); err == nil {
			t.Fatal("expected probe failure")
		}
		if _, ok := vr.Lookup(8); ok {
			t.Error("half-registered server after probe failure")
		}
	})

	t.Run("validation disabled skips the probe", func(t *testing.T) {
		probe := &stubProbe{err: errors.New("unreachable")}
		vr := newTestRegistry(t, Options{ValidateServers: false, Probe: probe})
		mustRegister(t, vr, testRegistration(9, "peer-y"))
		if probe.calls != 0 {
			t.Errorf("probe ran with validation disabled (%d calls)", probe.calls)
		}
	})
}

func TestConcurrentDuplicateRegister(t *testing.T) {
	r := newTestRegistry(t, Options{})

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Register(context.Background(), testRegistration(42, "peer-race"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateServerID):
			duplicates++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != attempts-1 {
		t.Errorf("successes=%d duplicates=%d, want 1/%d", successes, duplicates, attempts-1)
	}
	if servers, _ := r.Counts(); servers != 1 {
		t.Errorf("registry holds %d records for one id", servers)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, Options{})
	mustRegister(t, r, testRegistration(5, "peer-host"))

	start := SessionStart{
		SessionID:      "sess-abc",
		LobbyType:      LobbyTypePublic,
		LevelSymbol:    2001,
		GameTypeSymbol: 3001,
		Channel:        "NA-EAST",
		PlayerLimit:    10,
		ActiveTarget:   8,
	}

	t.Run("start inserts into session index", func(t *testing.T) {
		mustStartSession(t, r, 5, start)
		byID, ok1 := r.Lookup(5)
		bySess, ok2 := r.LookupBySession("sess-abc")
		if !ok1 || !ok2 {
			t.Fatal("lookups failed after StartSession")
		}
		if byID.SessionID != bySess.SessionID || byID.ServerID != bySess.ServerID ||
			byID.Channel != bySess.Channel || byID.PlayerLimit != bySess.PlayerLimit {
			t.Errorf("index views disagree: %+v vs %+v", byID, bySess)
		}
	})

	t.Run("second start rejected", func(t *testing.T) {
		err := r.StartSession(ctx, 5, SessionStart{SessionID: "sess-other", PlayerLimit: 4})
		if !errors.Is(err, ErrSessionActive) {
			t.Errorf("got %v, want ErrSessionActive", err)
		}
	})

	t.Run("session id collision rejected", func(t *testing.T) {
		mustRegister(t, r, testRegistration(6, "peer-other"))
		err := r.StartSession(ctx, 6, SessionStart{SessionID: "sess-abc", PlayerLimit: 4})
		if !errors.Is(err, ErrSessionIDCollision) {
			t.Errorf("got %v, want ErrSessionIDCollision", err)
		}
	})

	t.Run("end clears session but keeps registration", func(t *testing.T) {
		r.EndSession(ctx, 5)
		if _, ok := r.LookupBySession("sess-abc"); ok {
			t.Error("session index still holds ended session")
		}
		server, ok := r.Lookup(5)
		if !ok {
			t.Fatal("server left the registry on EndSession")
		}
		if server.SessionStarted || server.SessionID != "" || len(server.Players) != 0 {
			t.Errorf("session fields not cleared: %+v", server)
		}
		r.EndSession(ctx, 5)
	})
}

func TestUpdateSessionState(t *testing.T) {
	r := newTestRegistry(t, Options{})
	mustRegister(t, r, testRegistration(10, "peer-host"))
	mustStartSession(t, r, 10, SessionStart{SessionID: "s1", PlayerLimit: 3, ActiveTarget: -1})

	var slot1, slot2 string

	t.Run("joins mint distinct slots", func(t *testing.T) {
		slots, err := r.UpdateSessionState(10, SessionUpdate{
			Joins: []PlayerJoin{{PeerID: "p1", Team: 0}, {PeerID: "p2", Team: 1}},
		})
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if len(slots) != 2 || slots[0] == slots[1] || slots[0] == "" {
			t.Fatalf("slots = %v", slots)
		}
		slot1, slot2 = slots[0], slots[1]
	})

	t.Run("explicit slot ids honored", func(t *testing.T) {
		slots, err := r.UpdateSessionState(10, SessionUpdate{
			Joins: []PlayerJoin{{SlotID: "slot-ext", PeerID: "p3"}},
		})
		if err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if len(slots) != 1 || slots[0] != "slot-ext" {
			t.Errorf("slots = %v, want the supplied id", slots)
		}
	})

	t.Run("occupied explicit slot rejected", func(t *testing.T) {
		_, err := r.UpdateSessionState(10, SessionUpdate{
			Leaves: []string{"slot-ext"},
			Joins:  []PlayerJoin{{SlotID: slot1, PeerID: "p4"}},
		})
		if !errors.Is(err, ErrSlotOccupied) {
			t.Fatalf("got %v, want ErrSlotOccupied", err)
		}
		server, _ := r.Lookup(10)
		if _, ok := server.Players["slot-ext"]; !ok {
			t.Error("rejected update still removed a slot")
		}
	})

	t.Run("over-capacity join mutates nothing", func(t *testing.T) {
		_, err := r.UpdateSessionState(10, SessionUpdate{
			Joins: []PlayerJoin{{PeerID: "p4"}},
		})
		if !errors.Is(err, ErrSessionFull) {
			t.Fatalf("got %v, want ErrSessionFull", err)
		}
		server, _ := r.Lookup(10)
		if server.PlayerCount() != 3 {
			t.Errorf("player count changed on rejected update: %d", server.PlayerCount())
		}
	})

	t.Run("leave frees capacity", func(t *testing.T) {
		if _, err := r.UpdateSessionState(10, SessionUpdate{Leaves: []string{"slot-ext"}}); err != nil {
			t.Fatalf("leave failed: %v", err)
		}
		if _, err := r.UpdateSessionState(10, SessionUpdate{
			Joins: []PlayerJoin{{PeerID: "p5"}},
		}); err != nil {
			t.Fatalf("join after leave failed: %v", err)
		}
	})

	t.Run("invalid leave rejects whole update", func(t *testing.T) {
		before, _ := r.Lookup(10)
		lock := true
		_, err := r.UpdateSessionState(10, SessionUpdate{Lock: &lock, Leaves: []string{"no-such-slot"}})
		if !errors.Is(err, ErrUnknownSlot) {
			t.Fatalf("got %v, want ErrUnknownSlot", err)
		}
		after, _ := r.Lookup(10)
		if after.Locked || after.PlayerCount() != before.PlayerCount() {
			t.Error("partial mutation applied on rejected update")
		}
	})

	t.Run("team move and lock", func(t *testing.T) {
		lock := true
		if _, err := r.UpdateSessionState(10, SessionUpdate{
			Lock:  &lock,
			Moves: []TeamMove{{SlotID: slot2, Team: 2}},
		}); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		server, _ := r.Lookup(10)
		if !server.Locked || server.Players[slot2].Team != 2 {
			t.Errorf("update not applied: %+v", server)
		}
	})

	t.Run("no session rejected", func(t *testing.T) {
		mustRegister(t, r, testRegistration(11, "peer-idle"))
		if _, err := r.UpdateSessionState(11, SessionUpdate{}); !errors.Is(err, ErrNoSession) {
			t.Errorf("got %v, want ErrNoSession", err)
		}
	})
}

func TestUnregisterByPeer(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, Options{})
	mustRegister(t, r, testRegistration(20, "peer-gone"))
	mustRegister(t, r, testRegistration(21, "peer-stays"))
	mustStartSession(t, r, 20, SessionStart{SessionID: "s20", PlayerLimit: 8})

	r.UnregisterByPeer(ctx, "peer-gone")

	if _, ok := r.Lookup(20); ok {
		t.Error("server survived owner disconnect")
	}
	if _, ok := r.LookupBySession("s20"); ok {
		t.Error("session index survived owner disconnect")
	}
	if _, ok := r.Lookup(21); !ok {
		t.Error("unrelated server released")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := newTestRegistry(t, Options{})
	mustRegister(t, r, testRegistration(30, "peer-a"))
	mustStartSession(t, r, 30, SessionStart{SessionID: "s30", PlayerLimit: 4})

	snap := r.Snapshot()
	snap[0].Players["ghost"] = PlayerSession{SlotID: "ghost", PeerID: "intruder"}
	snap[0].Locked = true

	server, _ := r.Lookup(30)
	if server.PlayerCount() != 0 || server.Locked {
		t.Error("snapshot mutation leaked into registry state")
	}
}
