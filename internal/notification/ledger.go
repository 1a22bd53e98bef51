package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("notification not found")
	// ErrInvalidTransition is returned when a state change is attempted
	// from a state it is not reachable from.
	ErrInvalidTransition = errors.New("invalid notification state transition")
)

const recordColumns = `id, subscription_id, kind, status, phone_number, message_body,
		days_notice, created_at, sent_at, delivered_at, api_response, error_message, retry_count`

// Repository is the durable ledger of every attempted delivery, backed by
// PostgreSQL. It is the system of record for "was this customer already
// notified".
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new record in the pending state. The id and created
// timestamp are assigned here and never change afterwards.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()
	rec.Status = StatusPending

	query := `
		INSERT INTO notifications (id, subscription_id, kind, status, phone_number,
			message_body, days_notice, created_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SubscriptionID, rec.Kind, rec.Status, rec.PhoneNumber,
		rec.MessageBody, rec.DaysNotice, rec.CreatedAt, rec.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// MarkSent transitions pending -> sent, recording the sent timestamp and
// the raw gateway response.
func (r *Repository) MarkSent(ctx context.Context, id string, apiResponse json.RawMessage) error {
	query := `
		UPDATE notifications
		SET status = $1, sent_at = $2, api_response = $3
		WHERE id = $4 AND status = $5
	`
	return r.transition(ctx, query, StatusSent, time.Now().UTC(), nullableJSON(apiResponse), id, StatusPending)
}

// MarkFailed transitions pending -> failed, recording the error text.
func (r *Repository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE notifications
		SET status = $1, error_message = $2
		WHERE id = $3 AND status = $4
	`
	return r.transition(ctx, query, StatusFailed, errMsg, id, StatusPending)
}

// MarkDelivered upgrades sent -> delivered from an out-of-band gateway
// receipt.
func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	query := `
		UPDATE notifications
		SET status = $1, delivered_at = $2
		WHERE id = $3 AND status = $4
	`
	return r.transition(ctx, query, StatusDelivered, time.Now().UTC(), id, StatusSent)
}

// MarkRead upgrades sent or delivered -> read.
func (r *Repository) MarkRead(ctx context.Context, id string) error {
	query := `
		UPDATE notifications
		SET status = $1
		WHERE id = $2 AND status IN ($3, $4)
	`
	return r.transition(ctx, query, StatusRead, id, StatusSent, StatusDelivered)
}

// IncrementRetry bumps the retry counter on a prior record when an
// operator re-sends it.
func (r *Repository) IncrementRetry(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET retry_count = retry_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// GetByID retrieves a single record.
func (r *Repository) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM notifications WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListBySubscription returns all records for one subscription, newest first.
func (r *Repository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM notifications WHERE subscription_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, subscriptionID)
}

// ListByStatus returns all records in the given state, newest first.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM notifications WHERE status = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, status)
}

// ListByCreatedDate returns all records created on the given calendar day.
func (r *Repository) ListByCreatedDate(ctx context.Context, day time.Time) ([]*Record, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	query := `SELECT ` + recordColumns + `
		FROM notifications WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at DESC`
	return r.list(ctx, query, start, end)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		apiResponse []byte
		errMsg      sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.SubscriptionID, &rec.Kind, &rec.Status, &rec.PhoneNumber,
		&rec.MessageBody, &rec.DaysNotice, &rec.CreatedAt, &rec.SentAt,
		&rec.DeliveredAt, &apiResponse, &errMsg, &rec.RetryCount,
	)
	if err != nil {
		return nil, err
	}
	rec.APIResponse = apiResponse
	rec.ErrorMessage = errMsg.String
	return &rec, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
