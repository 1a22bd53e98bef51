package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sapliy/subscription-notifier/internal/gateway"
	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/internal/subscription"
	"github.com/sapliy/subscription-notifier/pkg/observability"
)

// fakeClock advances virtual time on every sleep so spacing can be
// asserted without waiting.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type fakeScanner struct {
	snapshots []subscription.Snapshot
	gotTarget time.Time
	err       error
}

func (s *fakeScanner) ExpiringOn(ctx context.Context, target time.Time) ([]subscription.Snapshot, error) {
	s.gotTarget = target
	return s.snapshots, s.err
}

type fakeLedger struct {
	records   map[string]*notification.Record
	createErr error
	nextID    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*notification.Record)}
}

func (l *fakeLedger) Create(ctx context.Context, rec *notification.Record) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.nextID++
	rec.ID = fmt.Sprintf("rec-%d", l.nextID)
	rec.CreatedAt = time.Now().UTC()
	rec.Status = notification.StatusPending
	l.records[rec.ID] = rec
	return nil
}

func (l *fakeLedger) MarkSent(ctx context.Context, id string, apiResponse json.RawMessage) error {
	rec, ok := l.records[id]
	if !ok {
		return notification.ErrNotFound
	}
	if rec.Status != notification.StatusPending {
		return notification.ErrInvalidTransition
	}
	now := time.Now().UTC()
	rec.Status = notification.StatusSent
	rec.SentAt = &now
	rec.APIResponse = apiResponse
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id string, errMsg string) error {
	rec, ok := l.records[id]
	if !ok {
		return notification.ErrNotFound
	}
	if rec.Status != notification.StatusPending {
		return notification.ErrInvalidTransition
	}
	rec.Status = notification.StatusFailed
	rec.ErrorMessage = errMsg
	return nil
}

func (l *fakeLedger) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	rec, ok := l.records[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (l *fakeLedger) IncrementRetry(ctx context.Context, id string) error {
	rec, ok := l.records[id]
	if !ok {
		return notification.ErrNotFound
	}
	rec.RetryCount++
	return nil
}

type gatewayCall struct {
	to   string
	text string
	at   time.Time
}

type fakeGateway struct {
	succeed bool
	clock   *fakeClock
	calls   []gatewayCall
}

func (g *fakeGateway) Send(ctx context.Context, to, text string) *gateway.Result {
	g.calls = append(g.calls, gatewayCall{to: to, text: text, at: g.clock.Now()})
	if g.succeed {
		return &gateway.Result{Success: true, RawResponse: json.RawMessage(`{"success":true}`)}
	}
	return &gateway.Result{Success: false, Error: "all gateway endpoints failed, last error: HTTP 502"}
}

type fakeGuard struct {
	claimed map[string]bool
	err     error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claimed: make(map[string]bool)}
}

func (g *fakeGuard) FirstToday(ctx context.Context, subscriptionID string, kind notification.Kind, day time.Time) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	key := fmt.Sprintf("%s:%s:%s", subscriptionID, kind, day.Format("2006-01-02"))
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func snapshotExpiring(clock *fakeClock, id string, daysAhead int) subscription.Snapshot {
	return subscription.Snapshot{
		ID:           id,
		CustomerID:   "cust_" + id,
		CustomerName: "Customer " + id,
		Phone:        "0968196046",
		ServiceName:  "Premium TV",
		Price:        29.99,
		EndDate:      clock.Now().AddDate(0, 0, daysAhead),
		Active:       true,
	}
}

type fixture struct {
	clock   *fakeClock
	scanner *fakeScanner
	ledger  *fakeLedger
	gateway *fakeGateway
	guard   *fakeGuard
	orch    *Orchestrator
}

func newFixture(snapshots []subscription.Snapshot, gatewaySucceeds bool) *fixture {
	clock := newFakeClock()
	f := &fixture{
		clock:   clock,
		scanner: &fakeScanner{snapshots: snapshots},
		ledger:  newFakeLedger(),
		gateway: &fakeGateway{succeed: gatewaySucceeds, clock: clock},
		guard:   newFakeGuard(),
	}
	f.orch = NewOrchestrator(
		f.scanner, f.ledger, f.gateway, f.guard, clock,
		5*time.Second, observability.NewLogger("test"),
	)
	return f
}

func TestRun_SendsOneNotification(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{snapshotExpiring(clock, "sub_1", 1)}, true)

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Total != 1 || summary.Sent != 1 || summary.Errors != 0 {
		t.Errorf("summary = %+v, want total=1 sent=1 errors=0", summary)
	}
	if len(f.ledger.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(f.ledger.records))
	}
	for _, rec := range f.ledger.records {
		if rec.Status != notification.StatusSent {
			t.Errorf("record status = %s, want sent", rec.Status)
		}
		if rec.DaysNotice == nil || *rec.DaysNotice != 1 {
			t.Errorf("record days notice = %v, want 1", rec.DaysNotice)
		}
		if rec.PhoneNumber != "593968196046" {
			t.Errorf("record phone = %q, want normalized", rec.PhoneNumber)
		}
		if rec.Kind != notification.KindExpirationWarning {
			t.Errorf("record kind = %s, want expiration_warning", rec.Kind)
		}
		if rec.SentAt == nil {
			t.Error("sent timestamp not set")
		}
		if len(rec.APIResponse) == 0 {
			t.Error("raw gateway response not stored")
		}
	}

	wantTarget := clock.Now().AddDate(0, 0, 1)
	if !f.scanner.gotTarget.Equal(wantTarget) {
		t.Errorf("scan target = %v, want %v", f.scanner.gotTarget, wantTarget)
	}
}

func TestRun_GatewayFailureRecordsFailed(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{snapshotExpiring(clock, "sub_1", 1)}, false)

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Sent != 0 || summary.Errors != 1 {
		t.Errorf("summary = %+v, want sent=0 errors=1", summary)
	}
	if len(f.ledger.records) != 1 {
		t.Fatalf("expected one record, got %d", len(f.ledger.records))
	}
	for _, rec := range f.ledger.records {
		if rec.Status != notification.StatusFailed {
			t.Errorf("record status = %s, want failed", rec.Status)
		}
		if rec.ErrorMessage == "" {
			t.Error("expected a non-empty error message")
		}
	}
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{
		snapshotExpiring(clock, "sub_1", 1),
		snapshotExpiring(clock, "sub_2", 1),
	}, true)

	summary, err := f.orch.Run(context.Background(), 1, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.gateway.calls) != 0 {
		t.Errorf("dry run performed %d gateway calls", len(f.gateway.calls))
	}
	if len(f.ledger.records) != 0 {
		t.Errorf("dry run created %d records", len(f.ledger.records))
	}
	if len(f.clock.sleeps) != 0 {
		t.Errorf("dry run slept %d times", len(f.clock.sleeps))
	}
	if summary.Sent != 2 {
		t.Errorf("summary sent = %d, want 2", summary.Sent)
	}
}

func TestRun_InterSendSpacing(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{
		snapshotExpiring(clock, "sub_1", 1),
		snapshotExpiring(clock, "sub_2", 1),
		snapshotExpiring(clock, "sub_3", 1),
	}, true)

	if _, err := f.orch.Run(context.Background(), 1, Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.gateway.calls) != 3 {
		t.Fatalf("expected 3 gateway calls, got %d", len(f.gateway.calls))
	}
	// No sleep after the last candidate.
	if len(f.clock.sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(f.clock.sleeps))
	}
	for i := 1; i < len(f.gateway.calls); i++ {
		gap := f.gateway.calls[i].at.Sub(f.gateway.calls[i-1].at)
		if gap < 5*time.Second {
			t.Errorf("gap between send %d and %d was %v, want >= 5s", i-1, i, gap)
		}
	}
}

func TestRun_UnusablePhoneIsCountedAndSkipped(t *testing.T) {
	clock := newFakeClock()
	bad := snapshotExpiring(clock, "sub_bad", 1)
	bad.Phone = "12345"
	good := snapshotExpiring(clock, "sub_good", 1)

	f := newFixture([]subscription.Snapshot{bad, good}, true)

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Sent != 1 || summary.Errors != 1 {
		t.Errorf("summary = %+v, want sent=1 errors=1", summary)
	}
	if len(f.ledger.records) != 1 {
		t.Errorf("expected no record for the unusable phone, got %d records", len(f.ledger.records))
	}
	if len(f.gateway.calls) != 1 || f.gateway.calls[0].to != "593968196046" {
		t.Errorf("expected one gateway call for the valid candidate, got %+v", f.gateway.calls)
	}
}

func TestRun_GuardSkipsAlreadyNotified(t *testing.T) {
	clock := newFakeClock()
	snap := snapshotExpiring(clock, "sub_1", 1)
	f := newFixture([]subscription.Snapshot{snap}, true)

	if _, err := f.orch.Run(context.Background(), 1, Options{}); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Second run for the same day and offset must not send again.
	f.scanner.snapshots = []subscription.Snapshot{snap}
	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if summary.Skipped != 1 || summary.Sent != 0 {
		t.Errorf("summary = %+v, want skipped=1 sent=0", summary)
	}
	if len(f.gateway.calls) != 1 {
		t.Errorf("expected no additional gateway call, got %d total", len(f.gateway.calls))
	}
	if len(f.ledger.records) != 1 {
		t.Errorf("expected no additional record, got %d total", len(f.ledger.records))
	}
}

func TestRun_GuardFailureDoesNotBlockSends(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{snapshotExpiring(clock, "sub_1", 1)}, true)
	f.guard.err = errors.New("redis unavailable")

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Sent != 1 {
		t.Errorf("summary sent = %d, want 1 despite guard failure", summary.Sent)
	}
}

func TestRun_LedgerCreateFailureAbortsOnlyThatCandidate(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{
		snapshotExpiring(clock, "sub_1", 1),
		snapshotExpiring(clock, "sub_2", 1),
	}, true)
	f.ledger.createErr = errors.New("disk full")

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Errors != 2 || summary.Sent != 0 {
		t.Errorf("summary = %+v, want errors=2 sent=0", summary)
	}
	if len(f.gateway.calls) != 0 {
		t.Errorf("no gateway call should happen without a pending record, got %d", len(f.gateway.calls))
	}
}

func TestRun_NegativeDaysRejected(t *testing.T) {
	f := newFixture(nil, true)
	if _, err := f.orch.Run(context.Background(), -1, Options{}); err == nil {
		t.Error("expected error for negative days notice")
	}
}

func TestRun_ScanErrorIsFatal(t *testing.T) {
	f := newFixture(nil, true)
	f.scanner.err = errors.New("store unreachable")

	if _, err := f.orch.Run(context.Background(), 1, Options{}); err == nil {
		t.Error("expected scan failure to abort the run")
	}
}

func TestRun_EmptyScanCompletesQuietly(t *testing.T) {
	f := newFixture(nil, true)

	summary, err := f.orch.Run(context.Background(), 1, Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total != 0 || summary.Sent != 0 || summary.Errors != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
}

func TestRun_CancellationStopsBetweenCandidates(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{
		snapshotExpiring(clock, "sub_1", 1),
		snapshotExpiring(clock, "sub_2", 1),
	}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.orch.Run(ctx, 1, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Sent != 0 {
		t.Errorf("no sends expected after cancellation, got %d", summary.Sent)
	}
}

func TestRunAll_AggregatesOffsets(t *testing.T) {
	clock := newFakeClock()
	f := newFixture([]subscription.Snapshot{snapshotExpiring(clock, "sub_1", 0)}, true)

	summary, err := f.orch.RunAll(context.Background(), []int{0, 1, 3}, Options{})
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	// The fake scanner returns the same candidate for every offset; the
	// guard deduplicates the repeats within the same day.
	if summary.Total != 3 {
		t.Errorf("summary total = %d, want 3", summary.Total)
	}
	if summary.Sent != 1 || summary.Skipped != 2 {
		t.Errorf("summary = %+v, want sent=1 skipped=2", summary)
	}
}
