// Package beacon periodically announces this relay to a central API so
// it can appear in public server lists. Announcements are best effort;
// a failed notify is logged and retried on the next tick, never
// surfaced to the core.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/relay"
	"github.com/arclight-project/arclight/internal/util"
)

// Beacon posts this relay's address and population to the configured
// central API on an interval.
type Beacon struct {
	cfg      config.BeaconConfig
	port     int
	relay    *relay.Server
	registry *registry.Registry
	client   *http.Client
	log      zerolog.Logger
}

type announcement struct {
	Address           string `json:"address"`
	Port              int    `json:"port"`
	RegisteredServers int    `json:"registeredServers"`
	ActiveSessions    int    `json:"activeSessions"`
}

func NewBeacon(cfg config.BeaconConfig, relayPort int, rly *relay.Server, reg *registry.Registry) *Beacon {
	return &Beacon{
		cfg:      cfg,
		port:     relayPort,
		relay:    rly,
		registry: reg,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      util.ComponentLogger("beacon"),
	}
}

// Run announces on the configured interval until the context ends. The
// first announcement goes out immediately.
func (b *Beacon) Run(ctx context.Context) {
	if !b.cfg.Enabled || b.cfg.CentralAPIURL == "" {
		return
	}
	b.log.Info().
		Str("url", b.cfg.CentralAPIURL).
		Dur("interval", b.cfg.BeaconInterval()).
		Msg("Central API beacon starting")

	ticker := time.NewTicker(b.cfg.BeaconInterval())
	defer ticker.Stop()

	b.announce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.announce(ctx)
		}
	}
}

func (b *Beacon) announce(ctx context.Context) {
	if err := b.notify(ctx); err != nil {
		b.log.Warn().Err(err).Msg("Central API notify failed")
	}
}

func (b *Beacon) notify(ctx context.Context) error {
	servers, sessions := b.registry.Counts()
	payload := announcement{
		Port:              b.port,
		RegisteredServers: servers,
		ActiveSessions:    sessions,
	}
	if b.relay != nil {
		payload.Address = b.relay.PublicAddress()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, b.cfg.CentralAPIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.CentralAPIKey != "" {
		req.Header.Set("X-Api-Key", b.cfg.CentralAPIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("central API returned status %d", resp.StatusCode)
	}
	b.log.Debug().Int("status", resp.StatusCode).Msg("Central API notified")
	return nil
}
