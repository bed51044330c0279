package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stripe/stripe-go/v84"
)

func TestDumpCapturesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_billing_customers_live", TableName: "billing_customers"}
	err := Wrap(CodePersistence, fmt.Errorf("insert: %w", pgErr), "persist customer mapping")

	d := Dump(err)
	if d.Code != CodePersistence {
		t.Fatalf("expected persistence code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_billing_customers_live" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected chain of 3, got %d", len(d.Chain))
	}
}

func TestDumpCapturesStripeFields(t *testing.T) {
	stripeErr := &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Code: stripe.ErrorCodeResourceMissing, RequestID: "req_1", HTTPStatusCode: 404}
	d := Dump(Wrap(CodeProvider, stripeErr, "No such customer"))
	if d.StripeCode != string(stripe.ErrorCodeResourceMissing) {
		t.Fatalf("expected stripe code, got %q", d.StripeCode)
	}
	if d.StripeRequestID != "req_1" || d.StripeStatus != 404 {
		t.Fatalf("unexpected stripe fields %+v", d)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
