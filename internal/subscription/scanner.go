package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresScanner reads expiring subscriptions from the application's
// relational store. Eligibility is part of the query: the subscription
// must be active, the customer must be active and have a phone on file.
type PostgresScanner struct {
	db *sql.DB
}

func NewPostgresScanner(db *sql.DB) *PostgresScanner {
	return &PostgresScanner{db: db}
}

func (s *PostgresScanner) ExpiringOn(ctx context.Context, target time.Time) ([]Snapshot, error) {
	query := `
		SELECT sub.id, c.id, c.full_name, c.phone, svc.display_name,
		       sub.price, sub.start_date, sub.end_date, sub.is_active
		FROM subscriptions sub
		JOIN customers c ON c.id = sub.customer_id
		JOIN services svc ON svc.id = sub.service_id
		WHERE sub.end_date = $1
		  AND sub.is_active = TRUE
		  AND c.is_active = TRUE
		  AND c.phone IS NOT NULL
		  AND c.phone <> ''
		ORDER BY c.full_name
	`
	rows, err := s.db.QueryContext(ctx, query, target.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(
			&snap.ID, &snap.CustomerID, &snap.CustomerName, &snap.Phone,
			&snap.ServiceName, &snap.Price, &snap.StartDate, &snap.EndDate,
			&snap.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// ByID fetches one subscription snapshot regardless of expiration date.
// Used by the renewal-confirmation flow.
func (s *PostgresScanner) ByID(ctx context.Context, id string) (Snapshot, error) {
	query := `
		SELECT sub.id, c.id, c.full_name, c.phone, svc.display_name,
		       sub.price, sub.start_date, sub.end_date, sub.is_active
		FROM subscriptions sub
		JOIN customers c ON c.id = sub.customer_id
		JOIN services svc ON svc.id = sub.service_id
		WHERE sub.id = $1
	`
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&snap.ID, &snap.CustomerID, &snap.CustomerName, &snap.Phone,
		&snap.ServiceName, &snap.Price, &snap.StartDate, &snap.EndDate,
		&snap.Active,
	)
	if err == sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("subscription %s not found", id)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	return snap, nil
}
