package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesTypedCodeAndPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_payment_external_order_id", TableName: "orders"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "duplicate intent")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected code %s, got %s", CodeConflict, d.Code)
	}
	if d.PGCode != "23505" || d.PGTable != "orders" {
		t.Fatalf("expected pg fields, got %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(d.Chain))
	}

	fields := d.Fields()
	if fields["pg_constraint"] != "idx_orders_payment_external_order_id" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestDumpUntypedError(t *testing.T) {
	d := Dump(fmt.Errorf("boom"))
	if d.Code != "" || d.Retryable {
		t.Fatalf("expected no typed code, got %+v", d)
	}
	if _, ok := d.Fields()["error_code"]; ok {
		t.Fatal("untyped error should not emit error_code")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatal("nil error should dump empty")
	}
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("exec: %w", &pq.Error{Code: "23514", Constraint: "orders_cancel_consistency", Table: "orders"})
	d := Dump(err)
	if d.PGCode != "23514" || d.PGConstraint != "orders_cancel_consistency" {
		t.Fatalf("expected pq fields, got %+v", d)
	}
}
