package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aerolake/aerolake-etl/pkg/apperrors"
)

const uniqueViolation = "23505"

// dbExecer covers both a pooled connection and a transaction.
type dbExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// classifyInsertError maps a unique violation on a dimension insert to the
// contract error the merge engine distinguishes on: the primary key means the
// sequence handed out a key that is already taken (fatal), the partial
// exactly-one-current index means a concurrent merge won the race (retry).
func classifyInsertError(err error, pkConstraint, currentConstraint string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case pkConstraint:
		return fmt.Errorf("%w: %s", apperrors.ErrSurrogateKeyCollision, pgErr.ConstraintName)
	case currentConstraint:
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
