package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/security"
	"github.com/goclaw/goclaw/internal/store"
)

var securityEventsLimit int

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Inspect and manage access control",
}

var securityStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gate policy and both allowlists",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := openSecurityStore()
		if err != nil {
			return err
		}
		defer st.Close()
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Policy:      %s\n", cfg.Security.Policy)
		fmt.Fprintf(out, "Code length: %d\n", cfg.Security.PairingCodeLength)
		fmt.Fprintf(out, "Code TTL:    %s\n", cfg.Security.PairingTTL)

		static := staticAllowlists(cfg)
		if len(static) == 0 {
			fmt.Fprintln(out, "Static allowlists: none (all channels open)")
		} else {
			fmt.Fprintln(out, "Static allowlists:")
			names := make([]string, 0, len(static))
			for name := range static {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s: %s\n", name, strings.Join(static[name], ", "))
			}
		}

		entries, err := st.ListAllowed()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "Dynamic allowlist: empty")
			return nil
		}
		fmt.Fprintln(out, "Dynamic allowlist:")
		for _, e := range entries {
			fmt.Fprintf(out, "  %s on %s (via %s, %s)\n",
				e.Identity, e.Channel, e.AddedVia, e.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var securityAllowCmd = &cobra.Command{
	Use:   "allow <channel> <identity>",
	Short: "Add an identity to the dynamic allowlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openSecurityStore()
		if err != nil {
			return err
		}
		defer st.Close()

		channel, identity := args[0], args[1]
		if err := st.AddAllowed(identity, channel, "manual"); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Allowed %s on %s\n", identity, channel)
		return nil
	},
}

var securityApproveCmd = &cobra.Command{
	Use:   "approve <code>",
	Short: "Approve a pairing code and allow its identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := openSecurityStore()
		if err != nil {
			return err
		}
		defer st.Close()

		gate := security.NewGate(st, cfg.Security, staticAllowlists(cfg))
		pc, err := gate.ApprovePairing(args[0])
		if err != nil {
			if errors.Is(err, store.ErrPairingCodeInvalid) {
				return fmt.Errorf("code %q is unknown, expired, or already used", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Paired %s on %s\n", pc.Identity, pc.Channel)
		return nil
	},
}

var securityEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent security audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := openSecurityStore()
		if err != nil {
			return err
		}
		defer st.Close()

		events, err := st.RecentSecurityEvents(securityEventsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No security events recorded.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintf(out, "%s  %-16s %s@%s  %s\n",
				e.CreatedAt.Format(time.RFC3339), e.Kind, e.Identity, e.Channel, e.Detail)
		}
		return nil
	},
}

var securityLimitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show the configured rate limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Max requests:   %d per %s\n", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		fmt.Fprintf(out, "Sweep interval: %s\n", cfg.RateLimit.SweepInterval)
		fmt.Fprintln(out, "Per-identity windows live in the daemon process; rate-limited senders show up in its log.")
		return nil
	},
}

func init() {
	securityCmd.AddCommand(securityStatusCmd)
	securityCmd.AddCommand(securityAllowCmd)
	securityCmd.AddCommand(securityApproveCmd)
	securityCmd.AddCommand(securityEventsCmd)
	securityCmd.AddCommand(securityLimitsCmd)

	securityEventsCmd.Flags().IntVar(&securityEventsLimit, "limit", 50, "Maximum number of events to show")

	rootCmd.AddCommand(securityCmd)
}

func openSecurityStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.NewStore(cfg.Paths.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, st, nil
}
