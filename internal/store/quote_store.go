// Package store persists generated quotes in PostgreSQL. The full quote
// document is kept as JSONB alongside the columns needed for lookup and
// expiry sweeps.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// Schema creates the quotes table. Applied by the schema tool at deploy
// time, not at server startup.
const Schema = `
CREATE TABLE IF NOT EXISTS quotes (
    id           TEXT PRIMARY KEY,
    group_id     TEXT NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    status       TEXT NOT NULL,
    filters      JSONB NOT NULL,
    payload      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_group_id ON quotes (group_id);
CREATE INDEX IF NOT EXISTS idx_quotes_expires_at ON quotes (expires_at);
`

// QuoteStore reads and writes quote documents.
type QuoteStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewQuoteStore(db *sql.DB, log logger.Logger) *QuoteStore {
	return &QuoteStore{
		db:  db,
		log: log.WithFields(map[string]interface{}{"component": "quote-store"}),
	}
}

// Save upserts the quote. Regenerating a quote for the same id replaces
// the stored document atomically.
func (s *QuoteStore) Save(ctx context.Context, quote *models.QuoteResult) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return errs.NewInternalError(fmt.Errorf("marshal quote %s: %w", quote.ID, err))
	}
	filters, err := json.Marshal(quote.Filters)
	if err != nil {
		return errs.NewInternalError(fmt.Errorf("marshal filters for quote %s: %w", quote.ID, err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quotes (id, group_id, generated_at, expires_at, status, filters, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			status     = EXCLUDED.status,
			filters    = EXCLUDED.filters,
			payload    = EXCLUDED.payload`,
		quote.ID, quote.GroupID, quote.GeneratedAt, quote.ExpiresAt, string(quote.Status), filters, payload,
	)
	if err != nil {
		return errs.NewStoreUnavailableError(err)
	}

	s.log.Debug("quote persisted", map[string]interface{}{
		"quoteId": quote.ID,
		"groupId": quote.GroupID,
	})
	return nil
}

// Get loads one quote document by id.
func (s *QuoteStore) Get(ctx context.Context, quoteID string) (*models.QuoteResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM quotes WHERE id = $1`, quoteID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NewQuoteNotFoundError(quoteID)
		}
		return nil, errs.NewStoreUnavailableError(err)
	}

	var quote models.QuoteResult
	if err := json.Unmarshal(payload, &quote); err != nil {
		return nil, errs.NewInternalError(fmt.Errorf("unmarshal quote %s: %w", quoteID, err))
	}
	return &quote, nil
}

// ListByGroup returns the group's quotes, newest first.
func (s *QuoteStore) ListByGroup(ctx context.Context, groupID string) ([]models.QuoteResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM quotes WHERE group_id = $1 ORDER BY generated_at DESC`, groupID,
	)
	if err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	var quotes []models.QuoteResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errs.NewStoreUnavailableError(err)
		}
		var quote models.QuoteResult
		if err := json.Unmarshal(payload, &quote); err != nil {
			return nil, errs.NewInternalError(err)
		}
		quotes = append(quotes, quote)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStoreUnavailableError(err)
	}
	return quotes, nil
}

// ExpireOverdue flips the status of quotes past their expiry. Run
// periodically; returns the number of rows updated.
func (s *QuoteStore) ExpireOverdue(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotes SET status = $1
		WHERE status = $2 AND expires_at < NOW()`,
		string(models.QuoteStatusExpired), string(models.QuoteStatusActive),
	)
	if err != nil {
		return 0, errs.NewStoreUnavailableError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errs.NewStoreUnavailableError(err)
	}
	if n > 0 {
		s.log.Info("expired quotes swept", map[string]interface{}{"count": n})
	}
	return n, nil
}
