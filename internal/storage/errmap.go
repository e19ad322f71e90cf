package storage

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotwise/bookd/internal/engine"
)

// mapError translates pgx failures into the engine's error taxonomy. Errors
// already carrying an engine sentinel pass through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrNotFound) ||
		errors.Is(err, engine.ErrConflict) ||
		errors.Is(err, engine.ErrInvalidInput) ||
		errors.Is(err, engine.ErrInvalidState) ||
		errors.Is(err, engine.ErrForbidden) ||
		errors.Is(err, engine.ErrUnavailable) ||
		engine.IsInsufficient(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Join(engine.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// 23P01 is the allocation exclusion constraint firing: a concurrent
		// writer claimed the resource between plan and commit. 23505 covers
		// uniqueness (duplicate personnel). 40001/40P01 are retryable
		// serialization failures and deadlocks, surfaced the same way.
		case "23P01", "23505", "40001", "40P01":
			return errors.Join(engine.ErrConflict, err)
		// Broken foreign keys mean the referenced row is gone.
		case "23503":
			return errors.Join(engine.ErrNotFound, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(engine.ErrUnavailable, err)
	}
	return err
}
