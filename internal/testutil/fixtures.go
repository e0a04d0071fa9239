package testutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedTransaction inserts a minimal ledger row directly, bypassing the
// service layer, for tests that need a pre-existing payment.
func SeedTransaction(t *testing.T, db *sql.DB, paymentID string, userID uuid.UUID, amount string, status string) {
	t.Helper()

	amt, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO payment_transactions (payment_id, user_id, amount, currency, payment_method, status)
		 VALUES ($1, $2, $3, 'EUR', 'paypal', $4)`,
		paymentID, userID, amt, status,
	)
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func CountTransactions(t *testing.T, db *sql.DB, paymentID string) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT count(*) FROM payment_transactions WHERE payment_id = $1`, paymentID).Scan(&n)
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}

func CountNotifications(t *testing.T, db *sql.DB, userID uuid.UUID) int {
	t.Helper()

	var n int
	err := db.QueryRow(`SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	return n
}
