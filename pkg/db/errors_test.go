package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolationPgconn(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "ux_ledger_entries_idempotency_key"}
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "ux_ledger_entries_idempotency_key"))
	assert.False(t, IsUniqueViolation(err, "ux_other"))
}

func TestIsUniqueViolationSqliteText(t *testing.T) {
	err := fmt.Errorf("UNIQUE constraint failed: ledger_entries.idempotency_key")
	assert.True(t, IsUniqueViolation(err, ""))
}

func TestIsSerializationFailure(t *testing.T) {
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsSerializationFailure(fmt.Errorf("canceling statement due to lock timeout")))
	assert.True(t, IsSerializationFailure(fmt.Errorf("database is locked")))
	assert.False(t, IsSerializationFailure(nil))
}
