package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DuplicateError reports an insert that hit a unique constraint.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string { return "duplicate key: " + e.Constraint }

func (e *DuplicateError) Unwrap() error { return e.Err }

// asDuplicate converts a unique violation into a *DuplicateError and
// returns any other error unchanged.
func asDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &DuplicateError{Constraint: pgErr.ConstraintName, Err: err}
	}
	return err
}

type pgDatabase struct {
	*pgxpool.Pool
}

// NewDatabase wraps a pool as a Database.
func NewDatabase(pool *pgxpool.Pool) Database {
	return &pgDatabase{Pool: pool}
}

// InTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (d *pgDatabase) InTx(ctx context.Context, fn func(tx DBTX) error) error {
	return pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}
