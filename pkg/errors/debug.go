package errors

import (
	stdErrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dumped flattens an error chain for structured logging.
type Dumped struct {
	Code         Code
	TopMessage   string
	Chain        []string
	PGCode       string
	PGMessage    string
	PGDetail     string
	PGTable      string
	PGConstraint string
}

// Dump walks the chain collecting messages plus any Postgres driver detail.
func Dump(err error) Dumped {
	out := Dumped{Code: CodeInternal}
	if err == nil {
		return out
	}
	out.TopMessage = err.Error()
	if typed := As(err); typed != nil {
		out.Code = typed.Code()
	}
	for cur := err; cur != nil; cur = stdErrors.Unwrap(cur) {
		out.Chain = append(out.Chain, cur.Error())
	}
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		out.PGCode = pgErr.Code
		out.PGMessage = pgErr.Message
		out.PGDetail = pgErr.Detail
		out.PGTable = pgErr.TableName
		out.PGConstraint = pgErr.ConstraintName
	}
	return out
}
