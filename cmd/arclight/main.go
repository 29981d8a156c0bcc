// Arclight - Game Relay & Matchmaking Backend
//
// Arclight terminates websocket connections from game clients and game
// servers, brokers matchmaking between them, serves account and
// configuration resources from an embedded database, and exposes a
// REST API for remote administration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	ucli "github.com/urfave/cli/v3"

	"github.com/arclight-project/arclight/internal/api"
	"github.com/arclight-project/arclight/internal/beacon"
	"github.com/arclight-project/arclight/internal/cli"
	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/matching"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/relay"
	"github.com/arclight-project/arclight/internal/service"
	"github.com/arclight-project/arclight/internal/storage"
	"github.com/arclight-project/arclight/internal/symbol"
	"github.com/arclight-project/arclight/internal/telemetry"
	"github.com/arclight-project/arclight/internal/util"
)

const (
	AppName    = "Arclight"
	AppVersion = "1.0.0"
	Banner     = `
     _             _ _       _     _
    / \   _ __ ___| (_) __ _| |__ | |_
   / _ \ | '__/ __| | |/ _' | '_ \| __|
  / ___ \| | | (__| | | (_| | | | | |_
 /_/   \_\_|  \___|_|_|\__, |_| |_|\__|
                       |___/  v%s
 Game Relay & Matchmaking Backend
`
)

func main() {
	cmd := &ucli.Command{
		Name:    "arclight",
		Usage:   "game relay and matchmaking backend",
		Version: AppVersion,
		Flags: []ucli.Flag{
			&ucli.StringFlag{Name: "config-dir", Value: config.DefaultConfigDir, Usage: "directory holding config.json"},
			&ucli.IntFlag{Name: "port", Usage: "relay websocket listen port (overrides config)"},
			&ucli.IntFlag{Name: "api-port", Usage: "admin REST API port (overrides config)"},
			&ucli.StringFlag{Name: "api-key", Usage: "admin REST API key (overrides config)"},
			&ucli.StringFlag{Name: "serverdb-key", Usage: "game server registration API key (overrides config)"},
			&ucli.StringFlag{Name: "database", Usage: "path to the sqlite database (overrides config)"},
			&ucli.BoolFlag{Name: "no-validate", Usage: "skip the reachability probe on game server registration"},
			&ucli.BoolFlag{Name: "force-matching", Usage: "relax region and version constraints when nothing matches"},
			&ucli.BoolFlag{Name: "favor-ping", Usage: "rank matchmaking candidates by ping instead of population"},
			&ucli.IntFlag{Name: "max-arena-age", Value: -1, Usage: "exclude sessions older than this many seconds from matching"},
			&ucli.StringFlag{Name: "duplicate-policy", Usage: "duplicate login handling: evict or reject (overrides config)"},
			&ucli.StringFlag{Name: "beacon-url", Usage: "central API announce URL (overrides config)"},
			&ucli.StringFlag{Name: "log-level", Usage: "log level (overrides config)"},
			&ucli.BoolFlag{Name: "no-cli", Usage: "disable the interactive CLI"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *ucli.Command) error {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Arclight")

	// Load configuration
	cfg, err := config.Load(cmd.String("config-dir"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlagOverrides(cfg, cmd)

	// Re-initialize logger with config-based settings
	logging := cfg.GetApplicationData().Logging
	logCfg := util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxBackups: logging.MaxBackups,
		Console:    logging.Console,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	relayData := cfg.GetRelayData()
	appData := cfg.GetApplicationData()

	// Open the resource store
	store, err := storage.Open(relayData.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	// Restore the symbol cache from the store
	symbols := symbol.NewCache()
	if doc, err := storage.GetSingleton(store.SymbolCache()); err == nil {
		if err := symbols.Import(doc); err != nil {
			log.Warn().Err(err).Msg("stored symbol cache is unreadable, starting empty")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Warn().Err(err).Msg("failed to load symbol cache")
	}
	log.Info().Int("symbols", symbols.Count()).Msg("symbol cache ready")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	reg := registry.NewRegistry(eventBus, registry.Options{
		ValidateServers: relayData.ValidateServers,
		ProbeTimeout:    relayData.ProbeTimeout(),
	})

	mm := matching.NewMatchmaker(reg, matching.Options{
		ForceMatching:   appData.Matching.ForceMatching,
		FavorPopulation: appData.Matching.FavorPopulation,
		MaxArenaAge:     appData.Matching.MaxArenaAge(),
	})

	policy := duplicatePolicy(relayData.DuplicateAuthPolicy)
	services := relay.Services{
		Login:       service.NewLoginService(eventBus, store, policy),
		Config:      service.NewConfigService(eventBus, store),
		Matching:    service.NewMatchingService(eventBus, store, mm, policy),
		Transaction: service.NewTransactionService(eventBus, store),
		ServerDB:    service.NewServerDBService(eventBus, reg, relayData.ServerDBAPIKey),
	}

	relayServer := relay.NewServer(relayData.Port, services, eventBus, relayData.PeerStatsInterval())
	apiServer := api.NewServer(cfg, store, reg, relayServer, symbols)
	announcer := beacon.NewBeacon(appData.Beacon, relayData.Port, relayServer, reg)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if appData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(appData.MQTT, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, relayServer, reg, symbols)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Relay server (websocket services)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", relayData.Port).Msg("starting relay server")
		if err := startWithRetry(ctx, "relay server", relayServer.Run, 15); err != nil {
			log.Error().Err(err).Msg("relay server failed after retries")
			errCh <- fmt.Errorf("relay server: %w", err)
		}
	}()

	// Task 2: Admin REST API (non-fatal: the relay keeps running without it)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", relayData.APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
		}
	}()

	// Task 3: Central API beacon
	wg.Add(1)
	go func() {
		defer wg.Done()
		announcer.Run(ctx)
	}()

	// Task 4: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 5: Interactive CLI
	if !cmd.Bool("no-cli") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting interactive CLI")
			cliHandler.Start(ctx)
		}()
	}

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The CLI 'quit' command requests shutdown through the event bus.
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Persist the symbol cache so interned symbols survive restarts
	if doc, err := symbols.Export(); err == nil {
		if err := storage.SetSingleton(store.SymbolCache(), doc); err != nil {
			log.Warn().Err(err).Msg("failed to persist symbol cache")
		}
	}

	// Stop the event bus last
	eventBus.Stop()

	log.Info().Msg("Arclight stopped")
	return nil
}

// applyFlagOverrides layers command-line flags over the loaded config.
// Flag values are not written back to disk.
func applyFlagOverrides(cfg *config.Config, cmd *ucli.Command) {
	relayData := cfg.GetRelayData()
	appData := cfg.GetApplicationData()

	if cmd.IsSet("port") {
		relayData.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("api-port") {
		relayData.APIPort = int(cmd.Int("api-port"))
	}
	if cmd.IsSet("api-key") {
		relayData.APIKey = cmd.String("api-key")
	}
	if cmd.IsSet("serverdb-key") {
		relayData.ServerDBAPIKey = cmd.String("serverdb-key")
	}
	if cmd.IsSet("database") {
		relayData.DatabasePath = cmd.String("database")
	}
	if cmd.IsSet("no-validate") {
		relayData.ValidateServers = !cmd.Bool("no-validate")
	}
	if cmd.IsSet("duplicate-policy") {
		relayData.DuplicateAuthPolicy = cmd.String("duplicate-policy")
	}

	if cmd.IsSet("force-matching") {
		appData.Matching.ForceMatching = cmd.Bool("force-matching")
	}
	if cmd.IsSet("favor-ping") {
		appData.Matching.FavorPopulation = !cmd.Bool("favor-ping")
	}
	if cmd.IsSet("max-arena-age") {
		if age := int(cmd.Int("max-arena-age")); age >= 0 {
			appData.Matching.MaxArenaAgeSec = &age
		} else {
			appData.Matching.MaxArenaAgeSec = nil
		}
	}
	if cmd.IsSet("beacon-url") {
		appData.Beacon.CentralAPIURL = cmd.String("beacon-url")
		appData.Beacon.Enabled = appData.Beacon.CentralAPIURL != ""
	}
	if cmd.IsSet("log-level") {
		appData.Logging.Level = cmd.String("log-level")
	}

	cfg.SetRelayData(relayData)
	cfg.SetApplicationData(appData)
}

// duplicatePolicy maps the configured policy name to its service
// constant. Unknown values fall back to eviction.
func duplicatePolicy(name string) service.DuplicateAuthPolicy {
	if name == "reject" {
		return service.DuplicateReject
	}
	return service.DuplicateEvict
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries so the OS has
// time to release sockets after a previous process was force-killed.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
