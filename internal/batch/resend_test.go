package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

func newResendFixture(gatewaySucceeds bool) (*Resender, *fakeLedger, *fakeGateway) {
	clock := newFakeClock()
	ledger := newFakeLedger()
	gw := &fakeGateway{succeed: gatewaySucceeds, clock: clock}
	r := NewResender(ledger, gw, observability.NewLogger("test"))
	return r, ledger, gw
}

func seedFailedRecord(t *testing.T, ledger *fakeLedger) *notification.Record {
	t.Helper()
	days := 1
	rec := &notification.Record{
		SubscriptionID: "sub_1",
		Kind:           notification.KindExpirationWarning,
		PhoneNumber:    "593968196046",
		MessageBody:    "your subscription expires tomorrow",
		DaysNotice:     &days,
	}
	if err := ledger.Create(context.Background(), rec); err != nil {
		t.Fatalf("failed to seed record: %v", err)
	}
	if err := ledger.MarkFailed(context.Background(), rec.ID, "gateway offline"); err != nil {
		t.Fatalf("failed to seed failure: %v", err)
	}
	return rec
}

func TestResend_CreatesNewRecord(t *testing.T) {
	r, ledger, gw := newResendFixture(true)
	prior := seedFailedRecord(t, ledger)

	rec, err := r.Resend(context.Background(), prior.ID)
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	if rec.ID == prior.ID {
		t.Error("resend must create a new record, not reuse the prior one")
	}
	if rec.Status != notification.StatusSent {
		t.Errorf("new record status = %s, want sent", rec.Status)
	}
	if rec.RetryCount != prior.RetryCount+1 {
		t.Errorf("new record retry count = %d, want %d", rec.RetryCount, prior.RetryCount+1)
	}
	if rec.MessageBody != prior.MessageBody {
		t.Error("resend must reuse the originally composed message")
	}

	// The prior record keeps its failed state; only its counter moves.
	stored, err := ledger.GetByID(context.Background(), prior.ID)
	if err != nil {
		t.Fatalf("failed to reload prior record: %v", err)
	}
	if stored.Status != notification.StatusFailed {
		t.Errorf("prior record status = %s, want failed", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Errorf("prior record retry count = %d, want 1", stored.RetryCount)
	}

	if len(gw.calls) != 1 || gw.calls[0].to != "593968196046" {
		t.Errorf("unexpected gateway calls %+v", gw.calls)
	}
}

func TestResend_GatewayFailure(t *testing.T) {
	r, ledger, _ := newResendFixture(false)
	prior := seedFailedRecord(t, ledger)

	rec, err := r.Resend(context.Background(), prior.ID)
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if rec.Status != notification.StatusFailed {
		t.Errorf("new record status = %s, want failed", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Error("expected error detail on the failed resend record")
	}
}

func TestResend_UnknownRecord(t *testing.T) {
	r, _, _ := newResendFixture(true)

	_, err := r.Resend(context.Background(), "missing")
	if !errors.Is(err, notification.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSendRenewal(t *testing.T) {
	r, ledger, gw := newResendFixture(true)
	clock := newFakeClock()
	snap := snapshotExpiring(clock, "sub_9", 30)
	snap.EndDate = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	rec, err := r.SendRenewal(context.Background(), snap)
	if err != nil {
		t.Fatalf("SendRenewal failed: %v", err)
	}
	if rec.Kind != notification.KindRenewalConfirmation {
		t.Errorf("record kind = %s, want renewal_confirmation", rec.Kind)
	}
	if rec.Status != notification.StatusSent {
		t.Errorf("record status = %s, want sent", rec.Status)
	}
	if rec.DaysNotice != nil {
		t.Error("renewal confirmations carry no days notice")
	}
	if len(gw.calls) != 1 {
		t.Errorf("expected one gateway call, got %d", len(gw.calls))
	}
	if _, err := ledger.GetByID(context.Background(), rec.ID); err != nil {
		t.Errorf("renewal record not persisted: %v", err)
	}
}
