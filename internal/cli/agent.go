package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/logging"
)

var (
	agentMessage string
	agentSession string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run one agent turn directly from the terminal",
	Run:   runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent")
	agentCmd.Flags().StringVarP(&agentSession, "session", "s", "default", "Session name for the cli channel")
}

// runAgent processes a single message through the full tool-calling loop.
// The cli channel is operator-local, so the rate limiter and the security
// gate are not consulted.
func runAgent(cmd *cobra.Command, args []string) {
	if agentMessage == "" {
		fmt.Println("Error: --message is required")
		os.Exit(1)
	}

	printHeader("🤖 GoClaw Agent")

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

	if !rt.sandboxed && cfg.Sandbox.Mode == config.SandboxStrict {
		fmt.Println("⚠️  No container runtime found; shell commands will be refused (sandbox mode strict)")
	}

	fmt.Printf("🤖 GoClaw (%s)\n", cfg.Model.Name)
	fmt.Println("Thinking...")

	msg := &bus.InboundMessage{
		From:    agentSession,
		Channel: "cli",
		Text:    agentMessage,
	}
	reply, err := rt.loop.Process(context.Background(), msg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n" + reply)
}
