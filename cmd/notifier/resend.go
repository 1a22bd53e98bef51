package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resendCmd = &cobra.Command{
	Use:   "resend <notification-id>",
	Short: "Re-deliver a previously attempted notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.resender.Resend(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Resend recorded as %s with status %s\n", rec.ID, rec.Status)
		if rec.ErrorMessage != "" {
			fmt.Printf("Error: %s\n", rec.ErrorMessage)
		}
		return nil
	},
}
