package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/provider"
	"github.com/goclaw/goclaw/internal/sandbox"
	"github.com/goclaw/goclaw/internal/scheduler"
	"github.com/goclaw/goclaw/internal/store"
)

const (
	doctorPass = "PASS"
	doctorWarn = "WARN"
	doctorFail = "FAIL"
)

type doctorCheck struct {
	Status  string
	Name    string
	Message string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run config and setup diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		failures := 0
		for _, check := range runDoctorChecks() {
			if check.Status == doctorFail {
				failures++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", check.Status, check.Name, check.Message)
		}
		if failures > 0 {
			return fmt.Errorf("doctor found %d failing check(s)", failures)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorChecks() []doctorCheck {
	cfg, err := config.Load()
	if err != nil {
		return []doctorCheck{{doctorFail, "config", err.Error()}}
	}

	var checks []doctorCheck
	if path, pathErr := config.ConfigPath(); pathErr == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			checks = append(checks, doctorCheck{doctorPass, "config", path})
		} else {
			checks = append(checks, doctorCheck{doctorWarn, "config", "no config file, using defaults (run 'goclaw config init')"})
		}
	}

	if err := os.MkdirAll(cfg.Paths.StateDir, 0o700); err != nil {
		checks = append(checks, doctorCheck{doctorFail, "state dir", err.Error()})
	} else {
		checks = append(checks, doctorCheck{doctorPass, "state dir", cfg.Paths.StateDir})
	}

	if st, err := store.NewStore(cfg.Paths.DBPath); err != nil {
		checks = append(checks, doctorCheck{doctorFail, "store", err.Error()})
	} else {
		st.Close()
		checks = append(checks, doctorCheck{doctorPass, "store", cfg.Paths.DBPath})
	}

	if _, err := provider.Resolve(cfg, cfg.Model.Name); err != nil {
		checks = append(checks, doctorCheck{doctorFail, "provider", err.Error()})
	} else {
		checks = append(checks, doctorCheck{doctorPass, "provider", cfg.Model.Name})
	}

	if err := sandbox.NewExecutor(cfg.Sandbox).Ready(); err != nil {
		if cfg.Sandbox.Mode == config.SandboxDev {
			checks = append(checks, doctorCheck{doctorWarn, "sandbox", fmt.Sprintf("%v; dev mode runs commands on the host", err)})
		} else {
			checks = append(checks, doctorCheck{doctorFail, "sandbox", fmt.Sprintf("%v; shell commands will be refused", err)})
		}
	} else {
		checks = append(checks, doctorCheck{doctorPass, "sandbox", "container runtime ready"})
	}

	checks = append(checks, channelChecks(cfg)...)

	if cfg.Scheduler.Enabled {
		var invalid []string
		for _, jc := range cfg.Scheduler.Jobs {
			if _, err := scheduler.ParseCron(jc.Cron); err != nil {
				invalid = append(invalid, jc.Name)
			}
		}
		if len(invalid) > 0 {
			checks = append(checks, doctorCheck{doctorFail, "scheduler", "invalid cron in jobs: " + strings.Join(invalid, ", ")})
		} else {
			checks = append(checks, doctorCheck{doctorPass, "scheduler", fmt.Sprintf("%d job(s) configured", len(cfg.Scheduler.Jobs))})
		}
	}

	return checks
}

func channelChecks(cfg *config.Config) []doctorCheck {
	var checks []doctorCheck
	if cfg.Channels.Slack.Enabled {
		if cfg.Channels.Slack.BotToken == "" || cfg.Channels.Slack.AppToken == "" {
			checks = append(checks, doctorCheck{doctorFail, "slack", "enabled but botToken or appToken missing"})
		} else {
			checks = append(checks, doctorCheck{doctorPass, "slack", "tokens configured"})
		}
	}
	if cfg.Channels.WhatsApp.Enabled {
		if _, err := os.Stat(filepath.Join(cfg.Paths.StateDir, "whatsapp.db")); err == nil {
			checks = append(checks, doctorCheck{doctorPass, "whatsapp", "session found"})
		} else {
			qr := filepath.Join(cfg.Paths.StateDir, "whatsapp-qr.png")
			checks = append(checks, doctorCheck{doctorWarn, "whatsapp", "no session; the daemon will write a login QR to " + qr})
		}
	}
	if cfg.Channels.Kafka.Enabled {
		if strings.TrimSpace(cfg.Channels.Kafka.Brokers) == "" {
			checks = append(checks, doctorCheck{doctorFail, "kafka", "enabled but brokers missing"})
		} else {
			msg := fmt.Sprintf("%s (%s -> %s)", cfg.Channels.Kafka.Brokers,
				cfg.Channels.Kafka.InboundTopic, cfg.Channels.Kafka.OutboundTopic)
			checks = append(checks, doctorCheck{doctorPass, "kafka", msg})
		}
	}
	if !cfg.Channels.Slack.Enabled && !cfg.Channels.WhatsApp.Enabled && !cfg.Channels.Kafka.Enabled {
		checks = append(checks, doctorCheck{doctorWarn, "channels", "none enabled; only 'goclaw agent' will reach the assistant"})
	}
	return checks
}
