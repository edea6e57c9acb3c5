package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/channels"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/logging"
	"github.com/goclaw/goclaw/internal/ratelimit"
	"github.com/goclaw/goclaw/internal/scheduler"
	"github.com/goclaw/goclaw/internal/security"
)

var daemonSignalNotify = signal.Notify
var daemonSignalStop = signal.Stop

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the assistant daemon (channels, scheduler, agent loop)",
	Run:   runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) {
	printHeader("🌐 GoClaw Daemon")
	fmt.Println("Starting GoClaw daemon...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	teardown := logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	defer teardown()

	rt, err := buildRuntime(cfg)
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if rt.sandboxed {
		fmt.Println("📦 Sandbox runtime ready")
	} else if cfg.Sandbox.Mode == config.SandboxDev {
		fmt.Println("⚠️  No container runtime; shell commands run directly on the host (dev mode)")
	} else {
		fmt.Println("⚠️  No container runtime; shell commands will be refused (sandbox mode strict)")
	}

	msgBus := bus.NewMessageBus()
	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.SweepInterval)
	gate := security.NewGate(rt.store, cfg.Security, staticAllowlists(cfg))
	disp := &dispatcher{bus: msgBus, limiter: limiter, gate: gate, loop: rt.loop}

	slackCh := channels.NewSlackChannel(cfg.Channels.Slack, msgBus)
	waCh := channels.NewWhatsAppChannel(cfg.Channels.WhatsApp, cfg.Paths.StateDir, msgBus)
	kafkaCh := channels.NewKafkaChannel(cfg.Channels.Kafka, msgBus)
	allChannels := []channels.Channel{slackCh, waCh, kafkaCh}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	daemonSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer daemonSignalStop(sigChan)

	go limiter.Start(ctx)

	for _, ch := range allChannels {
		if err := ch.Start(ctx); err != nil {
			fmt.Printf("Failed to start %s channel: %v\n", ch.Name(), err)
		}
	}

	// Replies to scheduled prompts have no chat to land in; they go to the log.
	msgBus.Subscribe("scheduler", func(msg *bus.OutboundMessage) {
		slog.Info("scheduled job reply", "job", msg.To, "reply_length", len(msg.Text))
	})

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Scheduler, cfg.Paths.StateDir, msgBus, rt.executor)
		sched.LoadJobs(cfg.Scheduler.Jobs)
		go sched.Run(ctx)
		fmt.Println("Scheduler started")
	}

	go msgBus.DispatchOutbound(ctx)
	go disp.run(ctx)

	fmt.Println("Daemon running. Press Ctrl+C to stop.")
	<-sigChan

	fmt.Println("Shutting down...")
	cancel()
	for _, ch := range allChannels {
		if err := ch.Stop(); err != nil {
			slog.Warn("channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	msgBus.Stop()
	slog.Info("daemon stopped", "active_rate_windows", len(limiter.ActiveWindows()))
}
