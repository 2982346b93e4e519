package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsSerializationFailure(t *testing.T) {
	serErr := &pgconn.PgError{Code: serializationFailureSQLState}
	if !isSerializationFailure(serErr) {
		t.Fatal("expected serialization failure SQLSTATE to be recognized")
	}
	if !isSerializationFailure(fmt.Errorf("wrapped: %w", serErr)) {
		t.Fatal("expected wrapped serialization failure to be recognized")
	}

	other := &pgconn.PgError{Code: uniqueViolationSQLState}
	if isSerializationFailure(other) {
		t.Fatal("unique violation must not be mistaken for a serialization failure")
	}
	if isSerializationFailure(fmt.Errorf("boom")) {
		t.Fatal("a non-pg error must never be treated as a serialization failure")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dupErr := &pgconn.PgError{Code: uniqueViolationSQLState}
	if !isUniqueViolation(dupErr) {
		t.Fatal("expected unique violation SQLSTATE to be recognized")
	}
	if isUniqueViolation(fmt.Errorf("boom")) {
		t.Fatal("a non-pg error must never be treated as a unique violation")
	}
}
