// PicoRelay — telemetry ingestion & command relay for Pico fan-control nodes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jkoivu/picorelay/internal/agent"
	"github.com/jkoivu/picorelay/internal/config"
	"github.com/jkoivu/picorelay/internal/server"
	"github.com/spf13/cobra"
)

const asciiLogo = `
 ██████╗ ██╗ ██████╗ ██████╗ ██████╗ ███████╗██╗      █████╗ ██╗   ██╗
 ██╔══██╗██║██╔════╝██╔═══██╗██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
 ██████╔╝██║██║     ██║   ██║██████╔╝█████╗  ██║     ███████║ ╚████╔╝
 ██╔═══╝ ██║██║     ██║   ██║██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
 ██║     ██║╚██████╗╚██████╔╝██║  ██║███████╗███████╗██║  ██║   ██║
 ╚═╝     ╚═╝ ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► PicoRelay %s  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "picorelay",
		Short: "PicoRelay — telemetry ingestion & command relay for Pico nodes",
		Long: `PicoRelay is a single-binary backend for remote temperature/fan-control
devices: nodes push readings over HTTP, the dashboard reads live and
historical data and queues configuration commands the nodes poll for.`,
		SilenceUsage: true,
	}

	// ── server subcommand ─────────────────────────────────────────────────────
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the PicoRelay backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := server.InitDB(cfg); err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}

			live := server.NewLiveState(cfg.LiveTTL(), cfg.SweepInterval(), cfg.LiveBufferMax)
			live.Start()
			defer live.Stop()

			gin.SetMode(gin.ReleaseMode)
			corsMiddleware := func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Header("Access-Control-Allow-Headers", "Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(204)
					return
				}
				c.Next()
			}

			engine := gin.New()
			engine.Use(gin.Recovery(), corsMiddleware)
			app := server.NewApp(live)
			app.RegisterRoutes(engine)
			server.RegisterStaticFiles(engine)

			addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.Port)
			fmt.Printf("  ✓ API + dashboard → http://%s\n", addr)
			fmt.Printf("  ✓ Presence TTL %s, sweep every %s, ring size %d\n\n",
				cfg.LiveTTL(), cfg.SweepInterval(), cfg.LiveBufferMax)

			srv := &http.Server{Addr: addr, Handler: engine}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt) // os.Interrupt = SIGINT; works on all platforms

			select {
			case err := <-errCh:
				return err
			case <-quit:
				fmt.Println("\n  → Shutting down gracefully…")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	// ── agent subcommand ──────────────────────────────────────────────────────
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Run a reporting agent on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// CLI flags override config values.
			if join, _ := cmd.Flags().GetString("join"); join != "" {
				if !containsPort(join) {
					join = fmt.Sprintf("%s:%d", join, cfg.Port)
				}
				cfg.AgentJoinAddr = join
			}
			if device, _ := cmd.Flags().GetString("device"); device != "" {
				cfg.AgentDeviceID = device
			}
			if interval, _ := cmd.Flags().GetInt("interval"); interval != 0 {
				cfg.AgentInterval = interval
			}

			fmt.Printf("  ✓ Joining server: %s\n", cfg.AgentJoinAddr)
			fmt.Printf("  ✓ Report interval: %ds\n\n", cfg.AgentInterval)
			return agent.Run(cfg)
		},
	}
	agentCmd.Flags().String("join", "", "Server address, e.g. 192.168.1.10 or 192.168.1.10:8080")
	agentCmd.Flags().String("device", "", "Device identifier (default: hostname)")
	agentCmd.Flags().Int("interval", 0, "Report interval in seconds (overrides config)")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print PicoRelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PicoRelay %s\n", version)
		},
	}

	root.AddCommand(serverCmd, agentCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// containsPort checks whether addr already has a port suffix.
func containsPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return true
		}
		if addr[i] == '/' {
			break
		}
	}
	return false
}
