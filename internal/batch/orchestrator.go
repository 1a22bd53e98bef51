// Package batch drives the scan -> compose -> normalize -> send -> log
// loop. Dispatch is strictly sequential with a mandatory inter-send
// delay: the upstream gateway rate-limits aggressively and concurrent
// sends have produced elevated error rates.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sapliy/subscription-notifier/internal/gateway"
	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/internal/subscription"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

// Gateway is the outbound delivery dependency of the loop.
type Gateway interface {
	Send(ctx context.Context, to, text string) *gateway.Result
}

// Ledger is the slice of the notification repository the loop needs.
type Ledger interface {
	Create(ctx context.Context, rec *notification.Record) error
	MarkSent(ctx context.Context, id string, apiResponse json.RawMessage) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// Summary reports the outcome of one run.
type Summary struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

// Options control one run.
type Options struct {
	// DryRun skips the gateway call, the ledger write and the inter-send
	// delay, logging what would have been sent.
	DryRun bool
}

// Orchestrator owns one pass over the expiring-subscription candidates.
type Orchestrator struct {
	scanner  subscription.Scanner
	ledger   Ledger
	gateway  Gateway
	guard    RunGuard // nil disables same-day deduplication
	clock    Clock
	interval time.Duration
	log      *observability.Logger
}

func NewOrchestrator(
	scanner subscription.Scanner,
	ledger Ledger,
	gw Gateway,
	guard RunGuard,
	clock Clock,
	interval time.Duration,
	log *observability.Logger,
) *Orchestrator {
	return &Orchestrator{
		scanner:  scanner,
		ledger:   ledger,
		gateway:  gw,
		guard:    guard,
		clock:    clock,
		interval: interval,
		log:      log,
	}
}

// Run scans for subscriptions expiring exactly daysNotice days from
// today and dispatches one reminder per candidate. A failure on one
// candidate is counted and logged but never aborts the remaining ones;
// only scan failure and context cancellation end the run early.
func (o *Orchestrator) Run(ctx context.Context, daysNotice int, opts Options) (Summary, error) {
	var summary Summary

	if daysNotice < 0 {
		return summary, fmt.Errorf("days notice must not be negative, got %d", daysNotice)
	}

	today := o.clock.Now()
	target := today.AddDate(0, 0, daysNotice)

	o.log.Info("scanning for expiring subscriptions",
		"target_date", target.Format("2006-01-02"), "days_notice", daysNotice)

	candidates, err := o.scanner.ExpiringOn(ctx, target)
	if err != nil {
		return summary, fmt.Errorf("failed to scan expiring subscriptions: %w", err)
	}

	summary.Total = len(candidates)
	if summary.Total == 0 {
		o.log.Info("no subscriptions expiring on target date",
			"target_date", target.Format("2006-01-02"))
		return summary, nil
	}

	o.log.Info("found subscriptions to notify", "count", summary.Total)

	for i, snap := range candidates {
		// Cancellation is honored between candidates, never mid-send.
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		o.dispatch(ctx, snap, daysNotice, today, opts.DryRun, &summary)

		if !opts.DryRun && i < len(candidates)-1 {
			o.log.Info("waiting before next send", "interval", o.interval.String())
			if err := o.clock.Sleep(ctx, o.interval); err != nil {
				return summary, err
			}
		}
	}

	mode := "live"
	if opts.DryRun {
		mode = "dry_run"
	}
	notification.BatchRunsTotal.WithLabelValues(mode).Inc()

	o.log.Info("run complete",
		"total", summary.Total, "sent", summary.Sent,
		"errors", summary.Errors, "skipped", summary.Skipped)
	return summary, nil
}

// RunAll executes one run per configured notice offset, the way the
// daily scheduler does.
func (o *Orchestrator) RunAll(ctx context.Context, offsets []int, opts Options) (Summary, error) {
	var combined Summary
	for _, days := range offsets {
		summary, err := o.Run(ctx, days, opts)
		combined.Total += summary.Total
		combined.Sent += summary.Sent
		combined.Errors += summary.Errors
		combined.Skipped += summary.Skipped
		if err != nil {
			return combined, fmt.Errorf("run for offset %d failed: %w", days, err)
		}
	}
	return combined, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, snap subscription.Snapshot, daysNotice int, today time.Time, dryRun bool, summary *Summary) {
	message, err := notification.ComposeExpiration(snap, daysNotice)
	if err != nil {
		o.log.Error("failed to compose message",
			"subscription_id", snap.ID, "error", err)
		summary.Errors++
		return
	}

	phone, err := notification.NormalizePhone(snap.Phone)
	if err != nil {
		o.log.Error("candidate has no usable phone number",
			"subscription_id", snap.ID, "customer", snap.CustomerName)
		summary.Errors++
		return
	}

	if dryRun {
		o.log.Info("[dry run] would send notification",
			"subscription_id", snap.ID, "customer", snap.CustomerName,
			"phone", phone, "service", snap.ServiceName)
		summary.Sent++
		return
	}

	if o.guard != nil {
		first, err := o.guard.FirstToday(ctx, snap.ID, notification.KindExpirationWarning, today)
		if err != nil {
			// A broken guard must not stop deliveries; worst case is the
			// pre-guard behavior of possibly notifying twice.
			o.log.Warn("run guard unavailable, proceeding without deduplication",
				"subscription_id", snap.ID, "error", err)
		} else if !first {
			o.log.Info("already notified today, skipping",
				"subscription_id", snap.ID, "customer", snap.CustomerName)
			notification.RunGuardSkips.Inc()
			summary.Skipped++
			return
		}
	}

	rec := &notification.Record{
		SubscriptionID: snap.ID,
		Kind:           notification.KindExpirationWarning,
		PhoneNumber:    phone,
		MessageBody:    message,
		DaysNotice:     &daysNotice,
	}
	if err := o.ledger.Create(ctx, rec); err != nil {
		o.log.Error("failed to create notification record",
			"subscription_id", snap.ID, "error", err)
		summary.Errors++
		return
	}

	timer := prometheus.NewTimer(notification.GatewaySendLatency)
	result := o.gateway.Send(ctx, phone, message)
	timer.ObserveDuration()

	if result.Success {
		if err := o.ledger.MarkSent(ctx, rec.ID, result.RawResponse); err != nil {
			o.log.Error("failed to mark notification as sent",
				"notification_id", rec.ID, "error", err)
		}
		notification.DispatchesTotal.WithLabelValues("sent").Inc()
		summary.Sent++
		o.log.Info("notification sent",
			"subscription_id", snap.ID, "customer", snap.CustomerName,
			"phone", phone, "endpoint", result.Endpoint)
		return
	}

	if err := o.ledger.MarkFailed(ctx, rec.ID, result.Error); err != nil {
		o.log.Error("failed to mark notification as failed",
			"notification_id", rec.ID, "error", err)
	}
	notification.DispatchesTotal.WithLabelValues("failed").Inc()
	summary.Errors++
	o.log.Error("notification delivery failed",
		"subscription_id", snap.ID, "customer", snap.CustomerName,
		"error", result.Error)
}
