// Package config handles configuration loading, validation, and
// persistence for the Arclight relay.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultRelayPort  = 7777
	DefaultAPIPort    = 8000
)

// Config is the root configuration structure for Arclight.
type Config struct {
	mu   sync.RWMutex
	path string

	Relay           RelayData       `json:"relay"`
	ApplicationData ApplicationData `json:"application_data"`
}

// RelayData contains the relay's listen and registry settings.
type RelayData struct {
	Port         int    `json:"relay_port"`
	DatabasePath string `json:"database_path"`

	// Admin API
	APIPort int    `json:"api_port"`
	APIKey  string `json:"api_key"`

	// Game server registration
	ServerDBAPIKey  string `json:"serverdb_api_key"`
	ValidateServers bool   `json:"validate_servers"`
	ProbeTimeoutMS  int    `json:"probe_timeout_ms"`

	// DuplicateAuthPolicy is "evict" or "reject".
	DuplicateAuthPolicy string `json:"duplicate_auth_policy"`

	PeerStatsIntervalSec int `json:"peer_stats_interval_sec"`
}

// ApplicationData contains policy and integration configuration.
type ApplicationData struct {
	Matching MatchingConfig `json:"matching"`
	Beacon   BeaconConfig   `json:"beacon"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Logging  LoggingConfig  `json:"logging"`
}

// MatchingConfig holds matchmaking policy settings.
type MatchingConfig struct {
	ForceMatching   bool `json:"force_matching"`
	FavorPopulation bool `json:"favor_population"`

	// MaxArenaAgeSec excludes sessions older than the cutoff from
	// matching. nil disables the check; an explicit 0 excludes every
	// running session.
	MaxArenaAgeSec *int `json:"max_arena_age_sec"`
}

// BeaconConfig holds the outbound central-API registration settings.
type BeaconConfig struct {
	Enabled       bool   `json:"enabled"`
	CentralAPIURL string `json:"central_api_url"`
	CentralAPIKey string `json:"central_api_key"`
	IntervalSec   int    `json:"interval_sec"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
	TopicBase string `json:"topic_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayData{
			Port:                 DefaultRelayPort,
			DatabasePath:         filepath.Join("data", "arclight.db"),
			APIPort:              DefaultAPIPort,
			ValidateServers:      true,
			ProbeTimeoutMS:       5000,
			DuplicateAuthPolicy:  "evict",
			PeerStatsIntervalSec: 60,
		},
		ApplicationData: ApplicationData{
			Matching: MatchingConfig{
				ForceMatching:   false,
				FavorPopulation: true,
			},
			Beacon: BeaconConfig{
				IntervalSec: 300,
			},
			MQTT: MQTTConfig{
				Port:      8883,
				UseTLS:    true,
				TopicBase: "arclight",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
				Console:    true,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating a default file
// when none exists.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code
	// updates, so config.json always reflects the complete option set.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRelayData returns a copy of the relay configuration.
func (c *Config) GetRelayData() RelayData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Relay
}

// SetRelayData updates the relay configuration.
func (c *Config) SetRelayData(data RelayData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Relay = data
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// ProbeTimeout returns the reachability probe timeout as a duration.
func (r RelayData) ProbeTimeout() time.Duration {
	return time.Duration(r.ProbeTimeoutMS) * time.Millisecond
}

// PeerStatsInterval returns the peer-stats logging interval; zero or
// negative disables it.
func (r RelayData) PeerStatsInterval() time.Duration {
	return time.Duration(r.PeerStatsIntervalSec) * time.Second
}

// MaxArenaAge converts the configured cutoff, preserving the unset /
// zero distinction.
func (m MatchingConfig) MaxArenaAge() *time.Duration {
	if m.MaxArenaAgeSec == nil {
		return nil
	}
	age := time.Duration(*m.MaxArenaAgeSec) * time.Second
	return &age
}

// BeaconInterval returns the central-API notify interval.
func (b BeaconConfig) BeaconInterval() time.Duration {
	if b.IntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(b.IntervalSec) * time.Second
}
