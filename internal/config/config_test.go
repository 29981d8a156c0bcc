package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("missing file creates defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		relay := cfg.GetRelayData()
		if relay.Port != DefaultRelayPort || relay.DuplicateAuthPolicy != "evict" {
			t.Errorf("defaults wrong: %+v", relay)
		}
		if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
			t.Errorf("default config not written: %v", err)
		}
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		dir := t.TempDir()
		raw := `{"relay":{"relay_port":9999},"application_data":{"matching":{"max_arena_age_sec":0}}}`
		if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		relay := cfg.GetRelayData()
		if relay.Port != 9999 {
			t.Errorf("port = %d, want file value", relay.Port)
		}
		if relay.ProbeTimeoutMS != 5000 {
			t.Errorf("unset field lost its default: %+v", relay)
		}
		age := cfg.GetApplicationData().Matching.MaxArenaAge()
		if age == nil || *age != 0 {
			t.Errorf("explicit zero cutoff not preserved: %v", age)
		}
	})

	t.Run("absent cutoff stays nil", func(t *testing.T) {
		cfg := DefaultConfig()
		if cfg.GetApplicationData().Matching.MaxArenaAge() != nil {
			t.Error("unset max arena age should remain nil")
		}
	})

	t.Run("malformed file rejected", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{nope"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(dir); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestDurationHelpers(t *testing.T) {
	relay := RelayData{ProbeTimeoutMS: 1500, PeerStatsIntervalSec: 30}
	if relay.ProbeTimeout() != 1500*time.Millisecond {
		t.Errorf("probe timeout = %v", relay.ProbeTimeout())
	}
	if relay.PeerStatsInterval() != 30*time.Second {
		t.Errorf("stats interval = %v", relay.PeerStatsInterval())
	}
	if (BeaconConfig{}).BeaconInterval() != 5*time.Minute {
		t.Errorf("beacon fallback interval wrong")
	}
}
