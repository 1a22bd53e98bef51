package batch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/internal/subscription"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

// ResendStore is the repository surface the manual re-delivery flow needs.
type ResendStore interface {
	GetByID(ctx context.Context, id string) (*notification.Record, error)
	Create(ctx context.Context, rec *notification.Record) error
	MarkSent(ctx context.Context, id string, apiResponse json.RawMessage) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	IncrementRetry(ctx context.Context, id string) error
}

// Resender handles operator-triggered re-delivery. A resend never mutates
// the state of the prior record; it creates a fresh record carrying an
// incremented retry counter and pushes it through the same normalize and
// send path as the batch loop.
type Resender struct {
	store   ResendStore
	gateway Gateway
	log     *observability.Logger
}

func NewResender(store ResendStore, gw Gateway, log *observability.Logger) *Resender {
	return &Resender{store: store, gateway: gw, log: log}
}

// Resend re-delivers the message of a prior record and returns the new
// record with its resolved state.
func (r *Resender) Resend(ctx context.Context, recordID string) (*notification.Record, error) {
	prior, err := r.store.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification %s: %w", recordID, err)
	}

	phone, err := notification.NormalizePhone(prior.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("stored phone number is not dialable: %w", err)
	}

	rec := &notification.Record{
		SubscriptionID: prior.SubscriptionID,
		Kind:           prior.Kind,
		PhoneNumber:    phone,
		MessageBody:    prior.MessageBody,
		DaysNotice:     prior.DaysNotice,
		RetryCount:     prior.RetryCount + 1,
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create resend record: %w", err)
	}

	result := r.gateway.Send(ctx, phone, rec.MessageBody)
	if result.Success {
		if err := r.store.MarkSent(ctx, rec.ID, result.RawResponse); err != nil {
			r.log.Error("failed to mark resend as sent", "notification_id", rec.ID, "error", err)
		}
		rec.Status = notification.StatusSent
		notification.DispatchesTotal.WithLabelValues("sent").Inc()
	} else {
		if err := r.store.MarkFailed(ctx, rec.ID, result.Error); err != nil {
			r.log.Error("failed to mark resend as failed", "notification_id", rec.ID, "error", err)
		}
		rec.Status = notification.StatusFailed
		rec.ErrorMessage = result.Error
		notification.DispatchesTotal.WithLabelValues("failed").Inc()
	}

	if err := r.store.IncrementRetry(ctx, prior.ID); err != nil {
		r.log.Warn("failed to increment retry counter on prior record",
			"notification_id", prior.ID, "error", err)
	}

	r.log.Info("resend complete",
		"prior_id", prior.ID, "notification_id", rec.ID, "status", rec.Status)
	return rec, nil
}

// SendRenewal dispatches a renewal-confirmation message for a
// subscription, recording it like any other delivery.
func (r *Resender) SendRenewal(ctx context.Context, snap subscription.Snapshot) (*notification.Record, error) {
	message, err := notification.ComposeRenewal(snap)
	if err != nil {
		return nil, err
	}

	phone, err := notification.NormalizePhone(snap.Phone)
	if err != nil {
		return nil, fmt.Errorf("customer has no usable phone number: %w", err)
	}

	rec := &notification.Record{
		SubscriptionID: snap.ID,
		Kind:           notification.KindRenewalConfirmation,
		PhoneNumber:    phone,
		MessageBody:    message,
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create renewal record: %w", err)
	}

	result := r.gateway.Send(ctx, phone, message)
	if result.Success {
		if err := r.store.MarkSent(ctx, rec.ID, result.RawResponse); err != nil {
			r.log.Error("failed to mark renewal as sent", "notification_id", rec.ID, "error", err)
		}
		rec.Status = notification.StatusSent
		notification.DispatchesTotal.WithLabelValues("sent").Inc()
		return rec, nil
	}

	if err := r.store.MarkFailed(ctx, rec.ID, result.Error); err != nil {
		r.log.Error("failed to mark renewal as failed", "notification_id", rec.ID, "error", err)
	}
	rec.Status = notification.StatusFailed
	rec.ErrorMessage = result.Error
	notification.DispatchesTotal.WithLabelValues("failed").Inc()
	return rec, nil
}
