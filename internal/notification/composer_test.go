package notification

import (
	"strings"
	"testing"
	"time"

	"github.com/sapliy/subscription-notifier/internal/subscription"
)

func testSnapshot() subscription.Snapshot {
	return subscription.Snapshot{
		ID:           "sub_1",
		CustomerID:   "cust_1",
		CustomerName: "Maria Lopez",
		Phone:        "0968196046",
		ServiceName:  "Premium TV",
		Price:        29.99,
		StartDate:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		Active:       true,
	}
}

func TestComposeExpiration_TierBoundaries(t *testing.T) {
	tests := []struct {
		daysNotice int
		marker     string
		notMarker  string
	}{
		{0, "expires TODAY", "TOMORROW"},
		{1, "expires TOMORROW", "TODAY"},
		{2, "Time left: 2 days", "TOMORROW"},
		{3, "Time left: 3 days", "TOMORROW"},
		{4, "Time left: 4 days", "about to expire"},
		{7, "Time left: 7 days", "about to expire"},
	}

	for _, tt := range tests {
		msg, err := ComposeExpiration(testSnapshot(), tt.daysNotice)
		if err != nil {
			t.Fatalf("ComposeExpiration(days=%d) failed: %v", tt.daysNotice, err)
		}
		if !strings.Contains(msg, tt.marker) {
			t.Errorf("days=%d: message missing %q:\n%s", tt.daysNotice, tt.marker, msg)
		}
		if strings.Contains(msg, tt.notMarker) {
			t.Errorf("days=%d: message unexpectedly contains %q", tt.daysNotice, tt.notMarker)
		}
	}
}

func TestComposeExpiration_TodayGolden(t *testing.T) {
	want := `URGENT! Hello Maria Lopez

Your Premium TV subscription expires TODAY!
Expires: today, 15/09/2026
Renewal price: $29.99

Renew NOW to keep your service running.

Reply to this message right away.

Thank you for choosing TV Services!`

	got, err := ComposeExpiration(testSnapshot(), 0)
	if err != nil {
		t.Fatalf("ComposeExpiration failed: %v", err)
	}
	if got != want {
		t.Errorf("message mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestComposeExpiration_Interpolation(t *testing.T) {
	msg, err := ComposeExpiration(testSnapshot(), 3)
	if err != nil {
		t.Fatalf("ComposeExpiration failed: %v", err)
	}

	for _, want := range []string{"Maria Lopez", "Premium TV", "15/09/2026", "$29.99"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestComposeExpiration_Deterministic(t *testing.T) {
	snap := testSnapshot()
	for days := 0; days <= 10; days++ {
		first, err := ComposeExpiration(snap, days)
		if err != nil {
			t.Fatalf("ComposeExpiration(days=%d) failed: %v", days, err)
		}
		second, _ := ComposeExpiration(snap, days)
		if first != second {
			t.Errorf("days=%d: repeated composition produced different output", days)
		}
	}
}

func TestComposeExpiration_RejectsNegativeDays(t *testing.T) {
	if _, err := ComposeExpiration(testSnapshot(), -1); err == nil {
		t.Error("expected error for negative days notice")
	}
}

func TestComposeRenewal(t *testing.T) {
	msg, err := ComposeRenewal(testSnapshot())
	if err != nil {
		t.Fatalf("ComposeRenewal failed: %v", err)
	}
	for _, want := range []string{"Maria Lopez", "Premium TV", "renewed successfully", "15/09/2026"} {
		if !strings.Contains(msg, want) {
			t.Errorf("renewal message missing %q:\n%s", want, msg)
		}
	}
}
