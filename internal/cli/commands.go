// Package cli implements the interactive command-line interface for
// the Arclight relay. It provides live views of connected peers,
// registered game servers, and active sessions.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/arclight-project/arclight/internal/config"
	"github.com/arclight-project/arclight/internal/events"
	"github.com/arclight-project/arclight/internal/registry"
	"github.com/arclight-project/arclight/internal/relay"
	"github.com/arclight-project/arclight/internal/symbol"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	relay    *relay.Server
	registry *registry.Registry
	symbols  *symbol.Cache
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, rly *relay.Server, reg *registry.Registry, symbols *symbol.Cache) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		relay:    rly,
		registry: reg,
		symbols:  symbols,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nArclight CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("arclight> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			parts := strings.Fields(line)
			cmd := strings.ToLower(parts[0])
			args := parts[1:]

			if err := c.execute(ctx, cmd, args); err != nil {
				if err == io.EOF {
					return
				}
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "servers":
		c.printServers()
	case "sessions":
		return c.printSessions(args)
	case "symbol", "symbols", "sym":
		return c.cmdSymbol(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Arclight...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
		return io.EOF
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     Arclight CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show relay peer and registry counts     ║")
	fmt.Println("║  servers            List registered game servers            ║")
	fmt.Println("║  sessions [id]      List active sessions or show one        ║")
	fmt.Println("║  symbol <name|num>  Resolve a symbol in either direction    ║")
	fmt.Println("║  quit               Shutdown Arclight                       ║")
	fmt.Println("║  help               Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays an overview of the relay.
func (c *CLI) printStatus() {
	servers, sessions := c.registry.Counts()

	fmt.Println()
	if addr := c.relay.PublicAddress(); addr != "" {
		fmt.Printf("  Public Address:  %s\n", addr)
	}
	fmt.Printf("  Game Servers:    %d\n", servers)
	fmt.Printf("  Active Sessions: %d\n", sessions)
	fmt.Printf("  Known Symbols:   %d\n", c.symbols.Count())

	stats := c.relay.PeerStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("  Connected Peers:")
	for _, name := range names {
		fmt.Printf("    %-12s %d\n", name, stats[name])
	}
	fmt.Println()
}

// printServers displays registered game servers in a formatted table.
func (c *CLI) printServers() {
	servers := c.registry.Snapshot()

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Server ID", "Endpoint", "Region", "Version", "RTT", "Session"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, srv := range servers {
		session := "-"
		if srv.SessionStarted {
			session = srv.SessionID
		}

		tw.Append([]string{
			fmt.Sprintf("%d", srv.ServerID),
			fmt.Sprintf("%s:%d", srv.ExternalAddress, srv.Port),
			c.symbolName(srv.RegionSymbol),
			fmt.Sprintf("%d", srv.VersionLock),
			srv.RTT.Round(time.Millisecond).String(),
			session,
		})
	}

	tw.Render()
	fmt.Println()
}

// printSessions lists active sessions, or shows one session in detail.
func (c *CLI) printSessions(args []string) error {
	servers := c.registry.Snapshot()

	if len(args) > 0 {
		for _, srv := range servers {
			if srv.SessionStarted && srv.SessionID == args[0] {
				c.printSessionDetail(srv)
				return nil
			}
		}
		return fmt.Errorf("session not found: %s", args[0])
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Session ID", "Server", "Lobby", "Game Type", "Level", "Players", "Locked", "Age"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, srv := range servers {
		if !srv.SessionStarted {
			continue
		}

		lobby := "public"
		if srv.LobbyType == registry.LobbyTypePrivate {
			lobby = "private"
		}

		tw.Append([]string{
			srv.SessionID,
			fmt.Sprintf("%d", srv.ServerID),
			lobby,
			c.symbolName(srv.GameTypeSymbol),
			c.symbolName(srv.LevelSymbol),
			fmt.Sprintf("%d/%d", srv.PlayerCount(), srv.PlayerLimit),
			fmt.Sprintf("%v", srv.Locked),
			time.Since(srv.SessionStartedAt).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// printSessionDetail prints detailed info for a single session.
func (c *CLI) printSessionDetail(srv *registry.RegisteredGameServer) {
	fmt.Printf("\n  Session ID:   %s\n", srv.SessionID)
	fmt.Printf("  Server ID:    %d\n", srv.ServerID)
	fmt.Printf("  Endpoint:     %s:%d\n", srv.ExternalAddress, srv.Port)
	fmt.Printf("  Game Type:    %s\n", c.symbolName(srv.GameTypeSymbol))
	fmt.Printf("  Level:        %s\n", c.symbolName(srv.LevelSymbol))
	fmt.Printf("  Channel:      %s\n", srv.Channel)
	fmt.Printf("  Locked:       %v\n", srv.Locked)
	fmt.Printf("  Players:      %d/%d\n", srv.PlayerCount(), srv.PlayerLimit)
	fmt.Printf("  Started:      %s\n", srv.SessionStartedAt.Format(time.RFC3339))

	if len(srv.Players) > 0 {
		slots := make([]string, 0, len(srv.Players))
		for slot := range srv.Players {
			slots = append(slots, slot)
		}
		sort.Strings(slots)

		fmt.Println("  Slots:")
		for _, slot := range slots {
			p := srv.Players[slot]
			fmt.Printf("    %s  user=%s team=%d\n", slot, p.PeerID, p.Team)
		}
	}
	fmt.Println()
}

// cmdSymbol resolves a symbol name to its value, or a value back to
// its name. Unknown names are interned so both directions resolve on
// the next lookup.
func (c *CLI) cmdSymbol(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: symbol <name|number>")
	}
	arg := args[0]

	if sym, err := strconv.ParseInt(arg, 10, 64); err == nil {
		name, ok := c.symbols.Name(sym)
		if !ok {
			return fmt.Errorf("unknown symbol: %d", sym)
		}
		fmt.Printf("%d = %s\n", sym, name)
		return nil
	}

	if sym, ok := c.symbols.Symbol(arg); ok {
		fmt.Printf("%s = %d\n", arg, sym)
		return nil
	}

	sym := c.symbols.Intern(arg)
	fmt.Printf("%s = %d (interned)\n", arg, sym)
	return nil
}

// symbolName resolves a symbol for display, falling back to the
// numeric form.
func (c *CLI) symbolName(sym int64) string {
	if name, ok := c.symbols.Name(sym); ok {
		return name
	}
	return strconv.FormatInt(sym, 10)
}
