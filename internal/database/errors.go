package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class 23, integrity constraint violations.
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == PgErrUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == PgErrForeignKeyViolation
}
