package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/screenlink/agent/internal/approval"
	"github.com/screenlink/agent/internal/commands"
	"github.com/screenlink/agent/internal/config"
	"github.com/screenlink/agent/internal/display"
	"github.com/screenlink/agent/internal/encode"
	"github.com/screenlink/agent/internal/input"
	"github.com/screenlink/agent/internal/logging"
	"github.com/screenlink/agent/internal/pairing"
	"github.com/screenlink/agent/internal/region"
	"github.com/screenlink/agent/internal/server"
	"github.com/screenlink/agent/internal/sysauto"
	"github.com/screenlink/agent/internal/workerpool"
)

var (
	version = "0.1.0"
	cfgFile string
	port    int
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "screenlink-agent",
	Short: "Screenlink host agent",
	Long:  `Screenlink host - lets a paired mobile client view this screen and drive the desktop.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the host",
	Run: func(cmd *cobra.Command, args []string) {
		runHost()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Screenlink host v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/screenlink/screenlink.yaml)")
	runCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
}

func runHost() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if port > 0 {
		cfg.ListenPort = port
	}
	initLogging(cfg)

	if err := encode.LoadH264(cfg.OpenH264Paths...); err != nil {
		log.Warn("h264 unavailable, data-channel sessions will use stills", "error", err)
	}

	cred := pairing.New(cfg.ListenPort)
	qr, err := cred.QRCodePNG()
	if err != nil {
		log.Warn("qr generation failed", "error", err)
	}

	approvals := approval.NewRegistry(time.Duration(cfg.ApprovalTimeoutSeconds) * time.Second)
	approvals.OnRequest = func(req approval.Request) {
		// Until a UI is attached, decisions come from the terminal.
		fmt.Printf("\nConnection request %s from %s (%s)\n", req.ID, req.DeviceName, req.RemoteIP)
		fmt.Printf("Approve with: kill -USR1 %d  (deny: wait %ds)\n", os.Getpid(), cfg.ApprovalTimeoutSeconds)
	}

	source := display.NewSource(display.SourceConfig{
		FPS: cfg.CaptureFPS,
	})

	pool := workerpool.New(cfg.MaxAutomationWorkers, cfg.AutomationQueueSize)
	dispatcher := input.NewDispatcher(nil)

	srv := server.New(server.Deps{
		Config:     cfg,
		Credential: cred,
		Approvals:  approvals,
		Source:     source,
		Regions:    region.NewStore(),
		Commands:   commands.Load(cfg.CommandsFile),
		Input:      dispatcher,
		Automation: sysauto.NewSystem(),
		Pool:       pool,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchApprovalSignal(approvals)

	fmt.Printf("Pairing blob: %s\n", cred.Blob())
	if qr != "" {
		fmt.Printf("QR (PNG base64, %d bytes)\n", len(qr))
	}

	log.Info("starting", "version", version, "port", cfg.ListenPort)
	if err := srv.Run(ctx); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	dispatcher.Close()
	pool.StopAccepting()
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool.Drain(drainCtx)
	log.Info("stopped")
}
