// Package cli implements the goclaw command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/goclaw/goclaw/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"   ____        ____ _\n" +
		"  / ___| ___  / ___| | __ ___      __\n" +
		" | |  _ / _ \\| |   | |/ _` \\ \\ /\\ / /\n" +
		" | |_| | (_) | |___| | (_| |\\ V  V /\n" +
		"  \\____|\\___/ \\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "GoClaw - Personal AI Assistant",
	Long:  color.CyanString(logo) + "\nA personal chat assistant that runs language-model tool calls inside a container sandbox.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(daemonCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ GoClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

// printHeader prints the colored banner line interactive commands start with.
func printHeader(title string) {
	color.New(color.FgCyan, color.Bold).Println(title)
}
