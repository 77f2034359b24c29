package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func paymentRow(p Payment) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "order_id", "amount_cents", "status", "idempotency_token", "created_at"}).
		AddRow(p.ID, p.OrderID, p.AmountCents, string(p.Status), p.Token, time.Now())
}

func TestStoreInitSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRecord_NewToken(t *testing.T) {
	store, mock := newMockStore(t)
	p := Payment{ID: "pay-1", OrderID: "order-1", AmountCents: 900, Status: StatusSucceeded, Token: "tok-1"}

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.OrderID, p.AmountCents, p.Status, p.Token).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs(p.Token).
		WillReturnRows(paymentRow(p))

	got, err := store.Record(context.Background(), p)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.Status != StatusSucceeded || got.OrderID != "order-1" {
		t.Fatalf("recorded payment = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRecord_ConflictReturnsStoredRow(t *testing.T) {
	store, mock := newMockStore(t)
	stored := Payment{ID: "pay-old", OrderID: "order-1", AmountCents: 900, Status: StatusFailed, Token: "tok-1"}
	attempt := Payment{ID: "pay-new", OrderID: "order-1", AmountCents: 900, Status: StatusSucceeded, Token: "tok-1"}

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("tok-1").
		WillReturnRows(paymentRow(stored))

	got, err := store.Record(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	// The first recorded decision wins forever.
	if got.ID != "pay-old" || got.Status != StatusFailed {
		t.Fatalf("stored row must win: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreFindByToken_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "amount_cents", "status", "idempotency_token", "created_at"}))

	if _, err := store.FindByToken(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestStoreRefund_Succeeded(t *testing.T) {
	store, mock := newMockStore(t)
	refunded := Payment{ID: "pay-1", OrderID: "order-1", AmountCents: 900, Status: StatusRefunded, Token: "tok-1"}

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs("tok-1", StatusRefunded, StatusSucceeded).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("tok-1").
		WillReturnRows(paymentRow(refunded))

	got, err := store.Refund(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got.Status != StatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", got.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRefund_AlreadyRefundedReplays(t *testing.T) {
	store, mock := newMockStore(t)
	refunded := Payment{ID: "pay-1", OrderID: "order-1", AmountCents: 900, Status: StatusRefunded, Token: "tok-1"}

	mock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("tok-1").
		WillReturnRows(paymentRow(refunded))

	got, err := store.Refund(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("refund replay must succeed: %v", err)
	}
	if got.Status != StatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", got.Status)
	}
}

func TestStoreRefund_FailedPaymentNotRefundable(t *testing.T) {
	store, mock := newMockStore(t)
	failed := Payment{ID: "pay-1", OrderID: "order-1", AmountCents: 900, Status: StatusFailed, Token: "tok-1"}

	mock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("tok-1").
		WillReturnRows(paymentRow(failed))

	if _, err := store.Refund(context.Background(), "tok-1"); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("want ErrNotRefundable, got %v", err)
	}
}

func TestStoreRefund_UnknownToken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, order_id, amount_cents, status, idempotency_token, created_at").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "amount_cents", "status", "idempotency_token", "created_at"}))

	if _, err := store.Refund(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
