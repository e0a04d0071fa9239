package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sichrplace/payments/internal/domain"
)

const transactionColumns = `payment_id, user_id, viewing_request_id, apartment_id,
	amount, currency, payment_method, status, gateway_status, gateway_response,
	payer_id, transaction_id, refund_amount, fees, net_amount,
	completed_at, refunded_at, created_at, updated_at`

// TransactionRepository persists payment_transactions rows. All writes are
// keyed on payment_id, the gateway order id, which carries a unique
// constraint; that constraint is what makes concurrent capture and webhook
// writes converge instead of duplicating rows.
type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Ensure inserts the row, or merges into an existing one when another writer
// got there first. The conflict branch never overwrites a populated column
// with NULL: whichever path supplied a value wins, field by field.
func (r *TransactionRepository) Ensure(ctx context.Context, t *domain.PaymentTransaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_transactions (
			payment_id, user_id, viewing_request_id, apartment_id,
			amount, currency, payment_method, status, gateway_status, gateway_response,
			payer_id, transaction_id, refund_amount, fees, net_amount,
			completed_at, refunded_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, now(), now()
		)
		ON CONFLICT (payment_id) DO UPDATE SET
			user_id            = COALESCE(EXCLUDED.user_id, payment_transactions.user_id),
			viewing_request_id = COALESCE(EXCLUDED.viewing_request_id, payment_transactions.viewing_request_id),
			apartment_id       = COALESCE(EXCLUDED.apartment_id, payment_transactions.apartment_id),
			status             = EXCLUDED.status,
			gateway_status     = COALESCE(EXCLUDED.gateway_status, payment_transactions.gateway_status),
			gateway_response   = COALESCE(EXCLUDED.gateway_response, payment_transactions.gateway_response),
			payer_id           = COALESCE(EXCLUDED.payer_id, payment_transactions.payer_id),
			transaction_id     = COALESCE(EXCLUDED.transaction_id, payment_transactions.transaction_id),
			refund_amount      = COALESCE(EXCLUDED.refund_amount, payment_transactions.refund_amount),
			fees               = COALESCE(EXCLUDED.fees, payment_transactions.fees),
			net_amount         = COALESCE(EXCLUDED.net_amount, payment_transactions.net_amount),
			completed_at       = COALESCE(EXCLUDED.completed_at, payment_transactions.completed_at),
			refunded_at        = COALESCE(EXCLUDED.refunded_at, payment_transactions.refunded_at),
			updated_at         = now()`,
		t.PaymentID, t.UserID, t.ViewingRequestID, t.ApartmentID,
		t.Amount, t.Currency, t.PaymentMethod, t.Status, t.GatewayStatus, []byte(t.GatewayResponse),
		t.PayerID, t.TransactionID, t.RefundAmount, t.Fees, t.NetAmount,
		t.CompletedAt, t.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("Ensure: %w", err)
	}
	return nil
}

// Update writes back a row the caller has already merged. The caller is the
// ledger service, the single choke point for mutations.
func (r *TransactionRepository) Update(ctx context.Context, t *domain.PaymentTransaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_transactions SET
			user_id = $2, viewing_request_id = $3, apartment_id = $4,
			amount = $5, currency = $6, status = $7, gateway_status = $8,
			gateway_response = $9, payer_id = $10, transaction_id = $11,
			refund_amount = $12, fees = $13, net_amount = $14,
			completed_at = $15, refunded_at = $16, updated_at = now()
		WHERE payment_id = $1`,
		t.PaymentID, t.UserID, t.ViewingRequestID, t.ApartmentID,
		t.Amount, t.Currency, t.Status, t.GatewayStatus,
		[]byte(t.GatewayResponse), t.PayerID, t.TransactionID,
		t.RefundAmount, t.Fees, t.NetAmount,
		t.CompletedAt, t.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *TransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentTransaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE payment_id = $1`,
		paymentID,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return out, nil
}

func scanTransaction(s scanner) (*domain.PaymentTransaction, error) {
	var t domain.PaymentTransaction
	var userID uuid.NullUUID
	var gatewayResponse *[]byte

	err := s.Scan(
		&t.PaymentID, &userID, &t.ViewingRequestID, &t.ApartmentID,
		&t.Amount, &t.Currency, &t.PaymentMethod, &t.Status, &t.GatewayStatus, &gatewayResponse,
		&t.PayerID, &t.TransactionID, &t.RefundAmount, &t.Fees, &t.NetAmount,
		&t.CompletedAt, &t.RefundedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		t.UserID = &userID.UUID
	}
	if gatewayResponse != nil {
		t.GatewayResponse = *gatewayResponse
	}
	return &t, nil
}
