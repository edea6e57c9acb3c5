package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the goclaw configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		masked := *cfg
		masked.Providers.OpenAI.APIKey = maskSecret(masked.Providers.OpenAI.APIKey)
		masked.Providers.OpenRouter.APIKey = maskSecret(masked.Providers.OpenRouter.APIKey)
		masked.Providers.DeepSeek.APIKey = maskSecret(masked.Providers.DeepSeek.APIKey)
		masked.Providers.Groq.APIKey = maskSecret(masked.Providers.Groq.APIKey)
		masked.Providers.VLLM.APIKey = maskSecret(masked.Providers.VLLM.APIKey)
		masked.Channels.Slack.BotToken = maskSecret(masked.Channels.Slack.BotToken)
		masked.Channels.Slack.AppToken = maskSecret(masked.Channels.Slack.AppToken)

		data, err := json.MarshalIndent(&masked, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.Save(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
