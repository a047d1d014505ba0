package postgres

import (
	"errors"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeInvalidText          = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Translate maps driver errors onto the nearest taxonomy member.
// Errors that already carry a kind pass through; unknown errors become internal.
func Translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Wrap(err, apperr.KindNotFound, "%s not found", entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(err, apperr.KindDuplicateName, "%s already exists", entity)
		case codeForeignKeyViolation:
			return apperr.Conflict(err, "%s is referenced by other records", entity)
		case codeCheckViolation:
			return apperr.Conflict(err, "%s violates a constraint", entity)
		case codeInvalidText:
			return apperr.Wrap(err, apperr.KindValidation, "malformed %s identifier", entity)
		case codeSerializationFailure, codeDeadlockDetected:
			return apperr.Conflict(err, "concurrent modification of %s, retry the request", entity)
		}
	}
	return apperr.Internal(err)
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
