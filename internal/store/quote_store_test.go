package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func testQuote() *models.QuoteResult {
	return &models.QuoteResult{
		ID:              "quote-1",
		GroupID:         "group-1",
		GeneratedAt:     time.Now().UTC().Truncate(time.Second),
		Filters:         models.PlanFilters{OnMarket: true, OffMarket: true},
		AffordabilityID: "calc-1",
		Status:          models.QuoteStatusActive,
		ExpiresAt:       time.Now().UTC().AddDate(0, 0, 30).Truncate(time.Second),
	}
}

func newMockStore(t *testing.T) (*QuoteStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQuoteStore(db, logger.NewTestLogger(t)), mock
}

func TestQuoteStore_Save(t *testing.T) {
	s, mock := newMockStore(t)
	quote := testQuote()

	mock.ExpectExec("INSERT INTO quotes").
		WithArgs(quote.ID, quote.GroupID, quote.GeneratedAt, quote.ExpiresAt,
			string(quote.Status), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), quote))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteStore_SaveUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	quote := testQuote()

	mock.ExpectExec("INSERT INTO quotes").
		WillReturnError(assert.AnError)

	err := s.Save(context.Background(), quote)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeStoreUnavailable, errs.CodeOf(err))
}

func TestQuoteStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	quote := testQuote()
	payload, err := json.Marshal(quote)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM quotes WHERE id").
		WithArgs("quote-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := s.Get(context.Background(), "quote-1")
	require.NoError(t, err)
	assert.Equal(t, quote.ID, got.ID)
	assert.Equal(t, quote.GroupID, got.GroupID)
	assert.Equal(t, quote.AffordabilityID, got.AffordabilityID)
}

func TestQuoteStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT payload FROM quotes WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeQuoteNotFound, errs.CodeOf(err))
}

func TestQuoteStore_ListByGroup(t *testing.T) {
	s, mock := newMockStore(t)
	q1, _ := json.Marshal(testQuote())
	q2 := testQuote()
	q2.ID = "quote-2"
	p2, _ := json.Marshal(q2)

	mock.ExpectQuery("SELECT payload FROM quotes WHERE group_id").
		WithArgs("group-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(p2).AddRow(q1))

	quotes, err := s.ListByGroup(context.Background(), "group-1")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "quote-2", quotes[0].ID)
}

func TestQuoteStore_ExpireOverdue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE quotes SET status").
		WithArgs(string(models.QuoteStatusExpired), string(models.QuoteStatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
