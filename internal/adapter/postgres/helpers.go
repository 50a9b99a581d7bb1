package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deckhand-ai/deckhand/internal/domain"
)

// scannable covers both pgx.Row and pgx.Rows so the scan* functions can
// serve single-row lookups and list iterations alike.
type scannable interface {
	Scan(dest ...any) error
}

// notFoundWrap maps pgx.ErrNoRows onto domain.ErrNotFound, keeping the
// driver out of the error chain callers inspect. Any other error is wrapped
// with the same message.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne turns an UPDATE or DELETE that touched zero rows into
// domain.ErrNotFound. Exec reports no error for a missing row, so the
// row count is the only signal.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return nil
}
