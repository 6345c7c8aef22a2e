// Package app implements the fotactl operator CLI: a thin client for the
// fotad local API.
package app

import (
	"fmt"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

const commandDesc = `fotactl drives the firmware update agent on this device: it shows the
agent and slot status, forces an immediate update check, and stages a
manual rollback to the other slot.`

func NewCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:           "fotactl",
		Short:         "Control the firmware update agent",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", "http://127.0.0.1:9321", "Base URL of the fotad operator API.")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout.")

	client := func() *apiClient { return newAPIClient(server, timeout) }

	root.AddCommand(newStatusCommand(client))
	root.AddCommand(newCheckCommand(client))
	root.AddCommand(newRollbackCommand(client))
	return root
}

func newStatusCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent state, slots, and versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().status()
			if err != nil {
				return err
			}

			table := uitable.New()
			table.MaxColWidth = 80
			table.AddRow("STATE:", st.State)
			table.AddRow("ACTIVE SLOT:", st.ActiveSlot)
			table.AddRow("STANDBY SLOT:", st.StandbySlot)
			table.AddRow("CONFIRMED VERSION:", orDash(st.ConfirmedVersion))
			if st.PendingVersion != "" {
				table.AddRow("PENDING VERSION:", st.PendingVersion)
			}
			if st.PendingSwitch != "" {
				table.AddRow("PENDING SWITCH:", st.PendingSwitch)
			}
			if st.TargetVersion != "" {
				table.AddRow("UPDATE IN FLIGHT:", st.TargetVersion)
			}
			if st.BothFailed {
				table.AddRow("BOTH SLOTS FAILED:", "yes, device needs recovery")
			}
			if st.LastError != "" {
				table.AddRow("LAST ERROR:", st.LastError)
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newCheckCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Force an immediate update check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, msg, err := client().check()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newRollbackCommand(client func() *apiClient) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Flip the active slot, effective on the next power cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("rollback flips the boot slot; re-run with --yes to confirm")
			}
			active, msg, err := client().rollback()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (active slot is now %s)\n", msg, active)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the rollback.")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
