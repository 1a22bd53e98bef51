package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sapliy/subscription-notifier/internal/batch"
)

var (
	sendDays   int
	sendDryRun bool
	sendForce  bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send expiration reminders for one notice offset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.cfg.NotificationsEnabled && !sendForce {
			fmt.Println("Notifications are disabled (use --force to override)")
			return nil
		}

		summary, err := a.orch.Run(ctx, sendDays, batch.Options{DryRun: sendDryRun})
		if err != nil {
			return err
		}
		printSummary(summary, sendDryRun)
		return nil
	},
}

var sendAllCmd = &cobra.Command{
	Use:   "send-all",
	Short: "Send expiration reminders for every configured notice offset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.cfg.NotificationsEnabled && !sendForce {
			fmt.Println("Notifications are disabled (use --force to override)")
			return nil
		}

		summary, err := a.orch.RunAll(ctx, a.cfg.NotifyOffsets, batch.Options{DryRun: sendDryRun})
		if err != nil {
			return err
		}
		printSummary(summary, sendDryRun)
		return nil
	},
}

func init() {
	sendCmd.Flags().IntVar(&sendDays, "days", 1, "days before expiration to notify (0 means expires today)")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "log what would be sent without sending")
	sendCmd.Flags().BoolVar(&sendForce, "force", false, "send even if notifications are globally disabled")

	sendAllCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "log what would be sent without sending")
	sendAllCmd.Flags().BoolVar(&sendForce, "force", false, "send even if notifications are globally disabled")
}
