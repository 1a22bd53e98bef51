package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sapliy/subscription-notifier/internal/config"
	"github.com/sapliy/subscription-notifier/internal/gateway"
	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

var (
	testGatewayTo   string
	testGatewayText string
)

// test-gateway exercises the gateway probe without touching the database
// or the ledger, for verifying credentials and endpoint shapes.
var testGatewayCmd = &cobra.Command{
	Use:   "test-gateway",
	Short: "Send a single test message through the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.ResolveSecrets(ctx); err != nil {
			return err
		}
		if cfg.Gateway.APIKey == "" {
			return fmt.Errorf("gateway API key is not configured")
		}

		phone, err := notification.NormalizePhone(testGatewayTo)
		if err != nil {
			return fmt.Errorf("invalid phone number %q: %w", testGatewayTo, err)
		}

		log := observability.NewLogger("subscription-notifier")
		client := gateway.NewClient(gateway.Config{
			BaseURL:   cfg.Gateway.BaseURL,
			APIKey:    cfg.Gateway.APIKey,
			SessionID: cfg.Gateway.SessionID,
			Timeout:   cfg.Gateway.Timeout,
		}, log.Component("gateway"))

		result := client.Send(ctx, phone, testGatewayText)
		if !result.Success {
			return fmt.Errorf("gateway send failed: %s", result.Error)
		}

		fmt.Printf("Sent via %s\n", result.Endpoint)
		fmt.Printf("Response: %s\n", string(result.RawResponse))
		return nil
	},
}

func init() {
	testGatewayCmd.Flags().StringVar(&testGatewayTo, "to", "", "destination phone number (any supported format)")
	testGatewayCmd.Flags().StringVar(&testGatewayText, "text", "Test message from subscription-notifier", "message text")
	testGatewayCmd.MarkFlagRequired("to")
}
