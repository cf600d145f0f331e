package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/multierr"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "orders_order_number_key",
		TableName:      "orders",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "could not allocate a unique order number")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "orders_order_number_key" {
		t.Fatalf("unexpected pg fields: %+v", d)
	}
	if d.PGClass != "integrity_constraint_violation" {
		t.Fatalf("unexpected pg class %q", d.PGClass)
	}
	if d.TransientDB() {
		t.Fatal("unique violations are not transient")
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain links, got %d", len(d.Chain))
	}
}

func TestDumpMarksSerializationFailureTransient(t *testing.T) {
	d := Dump(&pq.Error{Code: "40001", Table: "inventory"})
	if !d.TransientDB() {
		t.Fatal("expected serialization failure to be transient")
	}
	fields := d.LogFields()
	if fields["pg_transient"] != true || fields["pg_table"] != "inventory" {
		t.Fatalf("unexpected log fields: %+v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatal("empty values must be omitted")
	}
}

func TestDumpListsJoinedErrors(t *testing.T) {
	err := multierr.Combine(fmt.Errorf("email pool"), fmt.Errorf("sms pool"))
	d := Dump(err)
	if len(d.Joined) != 2 {
		t.Fatalf("expected 2 joined errors, got %v", d.Joined)
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("expected empty dump for nil error")
	}
}
