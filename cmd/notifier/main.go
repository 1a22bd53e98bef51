package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sapliy/subscription-notifier/internal/batch"
	"github.com/sapliy/subscription-notifier/internal/config"
	"github.com/sapliy/subscription-notifier/internal/gateway"
	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/internal/subscription"
	"github.com/sapliy/subscription-notifier/pkg/database"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Subscription expiration notifier",
	Long: `Batch pipeline that finds subscriptions nearing expiration,
composes reminder messages and delivers them through the messaging
gateway, recording every attempt in a durable ledger.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, optional)")
	rootCmd.AddCommand(sendCmd, sendAllCmd, serveCmd, resendCmd, testGatewayCmd)
}

// app wires the pipeline components for one process. Construction fails
// eagerly on configuration errors so a misconfigured deployment does not
// fail candidate by candidate.
type app struct {
	cfg      *config.Config
	log      *observability.Logger
	db       *sql.DB
	redis    *redis.Client
	repo     *notification.Repository
	scanner  *subscription.PostgresScanner
	gateway  *gateway.Client
	orch     *batch.Orchestrator
	resender *batch.Resender
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	log := observability.NewLogger("subscription-notifier")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		repo:    notification.NewRepository(db),
		scanner: subscription.NewPostgresScanner(db),
		gateway: gateway.NewClient(gateway.Config{
			BaseURL:   cfg.Gateway.BaseURL,
			APIKey:    cfg.Gateway.APIKey,
			SessionID: cfg.Gateway.SessionID,
			Timeout:   cfg.Gateway.Timeout,
		}, log.Component("gateway")),
	}

	var guard batch.RunGuard
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		guard = batch.NewRedisRunGuard(a.redis)
	} else {
		log.Warn("redis_addr not configured, same-day deduplication is disabled")
	}

	a.orch = batch.NewOrchestrator(
		a.scanner, a.repo, a.gateway, guard,
		batch.NewClock(), cfg.SendInterval, log.Component("batch"),
	)
	a.resender = batch.NewResender(a.repo, a.gateway, log.Component("resend"))
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func printSummary(summary batch.Summary, dryRun bool) {
	fmt.Println("==================================================")
	fmt.Println("NOTIFICATION SUMMARY")
	fmt.Println("==================================================")
	fmt.Printf("Total subscriptions: %d\n", summary.Total)
	fmt.Printf("Sent: %d\n", summary.Sent)
	fmt.Printf("Errors: %d\n", summary.Errors)
	fmt.Printf("Skipped: %d\n", summary.Skipped)
	if dryRun {
		fmt.Println("\n[DRY RUN] No messages were actually sent")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
