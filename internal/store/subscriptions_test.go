// internal/store/subscriptions_test.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "jobmatch-service/internal/common/errors"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/models"
)

func subscriptionColumnList() []string {
	return []string{
		"id", "email", "query_text", "filters", "frequency", "active",
		"created_at", "last_sent_at",
	}
}

func subscriptionFiltersJSON(t *testing.T, filters models.SearchFilters) []byte {
	t.Helper()
	raw, err := json.Marshal(filters)
	require.NoError(t, err)
	return raw
}

func TestSubscriptionStore_Create_AssignsIDAndPersists(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSubscriptionStore(db, logger.NewTestLogger(t))

	mock.ExpectExec(`INSERT INTO subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub := &models.Subscription{
		Email:     "dev@example.com",
		QueryText: "senior golang engineer with kubernetes experience",
		Frequency: models.DigestWeekly,
		Active:    true,
	}
	err := s.Create(context.Background(), sub)

	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.False(t, sub.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionStore_ListActiveByFrequency_DecodesFilters(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSubscriptionStore(db, logger.NewTestLogger(t))

	minSalary := 90000.0
	filters := models.SearchFilters{JobLevel: "SENIOR_LEVEL", MinSalary: &minSalary}
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM subscriptions`).
		WithArgs("weekly").
		WillReturnRows(sqlmock.NewRows(subscriptionColumnList()).
			AddRow("sub-1", "a@example.com", "golang backend", subscriptionFiltersJSON(t, filters), "weekly", true, now, nil).
			AddRow("sub-2", "b@example.com", "python data", []byte(`{}`), "weekly", true, now, now))

	subs, err := s.ListActiveByFrequency(context.Background(), models.DigestWeekly)

	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "a@example.com", subs[0].Email)
	assert.Equal(t, models.JobLevel("SENIOR_LEVEL"), subs[0].Filters.JobLevel)
	require.NotNil(t, subs[0].Filters.MinSalary)
	assert.Equal(t, 90000.0, *subs[0].Filters.MinSalary)
	assert.Nil(t, subs[0].LastSentAt)
	require.NotNil(t, subs[1].LastSentAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionStore_GetByEmail_NotFoundReturnsNil(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSubscriptionStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM subscriptions WHERE email`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(subscriptionColumnList()))

	sub, err := s.GetByEmail(context.Background(), "nobody@example.com")

	require.NoError(t, err)
	assert.Nil(t, sub)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionStore_GetByEmail_QueryErrorIsStoreUnavailable(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSubscriptionStore(db, logger.NewTestLogger(t))

	mock.ExpectQuery(`SELECT .+ FROM subscriptions WHERE email`).
		WithArgs("a@example.com").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetByEmail(context.Background(), "a@example.com")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStoreUnavailable, apperrors.CodeOf(err))
}

func TestSubscriptionStore_MarkSent_UpdatesTimestamp(t *testing.T) {
	db, mock := createMockDB(t)
	s := NewSubscriptionStore(db, logger.NewTestLogger(t))

	sentAt := time.Now().UTC()
	mock.ExpectExec(`UPDATE subscriptions SET last_sent_at`).
		WithArgs(sentAt, "sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.MarkSent(context.Background(), "sub-1", sentAt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
