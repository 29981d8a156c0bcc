package beacon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/registry"
)

func TestNotify(t *testing.T) {
	reg := registry.NewRegistry(nil, registry.Options{})
	if _, err := reg.Register(context.Background(), registry.Registration{ServerID: 1, Port: 6792}); err != nil {
		t.Fatal(err)
	}

	t.Run("posts population with api key", func(t *testing.T) {
		var got announcement
		var gotKey string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-Api-Key")
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		b := NewBeacon(config.BeaconConfig{
			Enabled:       true,
			CentralAPIURL: ts.URL,
			CentralAPIKey: "central-key",
		}, 7777, nil, reg)

		if err := b.notify(context.Background()); err != nil {
			t.Fatalf("notify failed: %v", err)
		}
		if gotKey != "central-key" {
			t.Errorf("api key header = %q", gotKey)
		}
		if got.Port != 7777 || got.RegisteredServers != 1 {
			t.Errorf("announcement = %+v", got)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		b := NewBeacon(config.BeaconConfig{Enabled: true, CentralAPIURL: ts.URL}, 7777, nil, reg)
		if err := b.notify(context.Background()); err == nil {
			t.Error("expected error for 502 response")
		}
	})
}
