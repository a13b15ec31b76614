// internal/store/subscriptions.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

const subscriptionColumns = `id, email, query_text, filters, frequency, active, created_at, last_sent_at`

// SubscriptionStore persists digest subscriptions. The digest sweep reads
// them as matching input; this service never authenticates subscribers.
type SubscriptionStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewSubscriptionStore(db *sql.DB, log logger.Logger) *SubscriptionStore {
	return &SubscriptionStore{db: db, log: log}
}

// Create stores a subscription. One row per email and frequency.
func (s *SubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	sub.CreatedAt = time.Now().UTC()

	filtersJSON, err := json.Marshal(sub.Filters)
	if err != nil {
		return apperrors.NewRecordValidationFailedError(err.Error())
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, email, query_text, filters, frequency, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.Email, sub.QueryText, filtersJSON, string(sub.Frequency), sub.Active, sub.CreatedAt)
	if err != nil {
		return apperrors.NewStoreUnavailableError(err)
	}
	return nil
}

// ListActiveByFrequency returns the active subscriptions for one digest
// cadence.
func (s *SubscriptionStore) ListActiveByFrequency(ctx context.Context, frequency models.DigestFrequency) ([]*models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE active = TRUE AND frequency = $1 ORDER BY created_at`, string(frequency))
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return subs, nil
}

// GetByEmail returns the subscription for an email address, or nil.
func (s *SubscriptionStore) GetByEmail(ctx context.Context, email string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE email = $1`, email)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	return sub, nil
}

// MarkSent records the last successful digest delivery.
func (s *SubscriptionStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_sent_at = $1 WHERE id = $2`, sentAt, id)
	if err != nil {
		return apperrors.NewStoreUnavailableError(err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var frequency string
	var filtersJSON []byte
	var lastSentAt sql.NullTime

	err := row.Scan(&sub.ID, &sub.Email, &sub.QueryText, &filtersJSON,
		&frequency, &sub.Active, &sub.CreatedAt, &lastSentAt)
	if err != nil {
		return nil, err
	}

	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &sub.Filters); err != nil {
			return nil, err
		}
	}
	sub.Frequency = models.DigestFrequency(frequency)
	sub.LastSentAt = fromNullTime(lastSentAt)
	return &sub, nil
}
