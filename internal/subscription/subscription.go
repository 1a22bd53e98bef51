package subscription

import (
	"context"
	"time"
)

// Snapshot is a read-only view of one subscription row in the external
// store, joined with its customer and service. The notifier never writes
// back to these tables.
type Snapshot struct {
	ID           string
	CustomerID   string
	CustomerName string
	Phone        string
	ServiceName  string
	Price        float64
	StartDate    time.Time
	EndDate      time.Time
	Active       bool
}

// DaysUntilExpiration returns end date minus today in whole days. It is
// negative for already-expired subscriptions and zero for ones expiring
// today; the end date is the sole expiration signal.
func (s Snapshot) DaysUntilExpiration(today time.Time) int {
	end := truncateToDay(s.EndDate)
	day := truncateToDay(today)
	return int(end.Sub(day).Hours() / 24)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Scanner finds subscriptions whose end date lands exactly on a target
// day. Each notice tier is scanned independently with its own point query.
type Scanner interface {
	ExpiringOn(ctx context.Context, target time.Time) ([]Snapshot, error)
}
