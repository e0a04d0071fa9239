package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sichrplace/payments/internal/domain"
)

type fakeTransactionRepo struct {
	rows      map[string]*domain.PaymentTransaction
	ensureErr error
	updateErr error
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{rows: make(map[string]*domain.PaymentTransaction)}
}

func (f *fakeTransactionRepo) Ensure(_ context.Context, t *domain.PaymentTransaction) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	f.rows[t.PaymentID] = &cp
	return nil
}

func (f *fakeTransactionRepo) Update(_ context.Context, t *domain.PaymentTransaction) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.rows[t.PaymentID]; !ok {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	f.rows[t.PaymentID] = &cp
	return nil
}

func (f *fakeTransactionRepo) GetByPaymentID(_ context.Context, paymentID string) (*domain.PaymentTransaction, error) {
	t, ok := f.rows[paymentID]
	if !ok {
		return nil, fmt.Errorf("GetByPaymentID: %w", domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransactionRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.PaymentTransaction, error) {
	var out []domain.PaymentTransaction
	for _, t := range f.rows {
		if t.UserID != nil && *t.UserID == userID && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func TestLedger_RecordEvent_Materialize(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)
	userID := uuid.New()

	got, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-1",
		UserID:        &userID,
		Amount:        "25.00",
		Currency:      "eur",
		GatewayStatus: "CREATED",
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDER-1", got.PaymentID)
	assert.Equal(t, domain.PaymentStatusCreated, got.Status)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "paypal", got.PaymentMethod)
	require.NotNil(t, got.GatewayStatus)
	assert.Equal(t, "CREATED", *got.GatewayStatus)
	require.NotNil(t, got.UserID)
	assert.Equal(t, userID, *got.UserID)
}

func TestLedger_RecordEvent_CannotMaterializeWithoutAmount(t *testing.T) {
	ledger := NewLedger(newFakeTransactionRepo())

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID: "unknown_payment_id",
		Status:    domain.PaymentStatusCompleted,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCannotMaterialize)
}

func TestLedger_RecordEvent_Idempotent(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)

	upd := PaymentUpdate{
		PaymentID:     "ORDER-2",
		Amount:        "25.00",
		GatewayStatus: "COMPLETED",
		TransactionID: "CAP-1",
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	first, err := ledger.RecordEvent(context.Background(), upd)
	require.NoError(t, err)
	second, err := ledger.RecordEvent(context.Background(), upd)
	require.NoError(t, err)

	assert.Len(t, repo.rows, 1)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestLedger_RecordEvent_FieldWiseMerge(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-3",
		Amount:        "25.00",
		GatewayStatus: "COMPLETED",
		TransactionID: "T1",
		PayerID:       "PAYER-1",
	})
	require.NoError(t, err)

	// A later event that omits transaction_id must not erase it.
	got, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-3",
		GatewayStatus: "COMPLETED",
	})
	require.NoError(t, err)

	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "T1", *got.TransactionID)
	require.NotNil(t, got.PayerID)
	assert.Equal(t, "PAYER-1", *got.PayerID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("25.00")))
}

func TestLedger_RecordEvent_NumericGuard(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID: "ORDER-4",
		Amount:    "25.00",
	})
	require.NoError(t, err)

	got, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID: "ORDER-4",
		Amount:    "not-a-number",
		Fees:      "also-bad",
	})
	require.NoError(t, err)

	assert.True(t, got.Amount.Equal(decimal.RequireFromString("25.00")))
	assert.False(t, got.Fees.Valid)
}

func TestLedger_RecordEvent_UnmappedStatusLeavesDomainStatus(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-5",
		Amount:        "25.00",
		GatewayStatus: "CREATED",
	})
	require.NoError(t, err)

	got, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-5",
		GatewayStatus: "weird_status",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCreated, got.Status)
	require.NotNil(t, got.GatewayStatus)
	assert.Equal(t, "weird_status", *got.GatewayStatus)
}

func TestLedger_RecordEvent_TransitionTimestamps(t *testing.T) {
	repo := newFakeTransactionRepo()
	ledger := NewLedger(repo)
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-6",
		Amount:        "25.00",
		GatewayStatus: "CREATED",
	})
	require.NoError(t, err)

	completed, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:     "ORDER-6",
		GatewayStatus: "COMPLETED",
		OccurredAt:    occurred,
	})
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, occurred, *completed.CompletedAt)
	assert.Nil(t, completed.RefundedAt)

	refunded, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID:    "ORDER-6",
		Status:       domain.PaymentStatusRefunded,
		RefundAmount: "10.00",
		OccurredAt:   occurred.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, occurred.Add(time.Hour), *refunded.RefundedAt)
	// completed_at survives the refund transition.
	require.NotNil(t, refunded.CompletedAt)
	assert.Equal(t, occurred, *refunded.CompletedAt)
	require.True(t, refunded.RefundAmount.Valid)
	assert.True(t, refunded.RefundAmount.Decimal.Equal(decimal.RequireFromString("10.00")))
}

func TestLedger_RecordEvent_RequiresPaymentID(t *testing.T) {
	ledger := NewLedger(newFakeTransactionRepo())

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{Amount: "25.00"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestLedger_RecordEvent_PersistenceError(t *testing.T) {
	repo := newFakeTransactionRepo()
	repo.ensureErr = fmt.Errorf("connection refused")
	ledger := NewLedger(repo)

	_, err := ledger.RecordEvent(context.Background(), PaymentUpdate{
		PaymentID: "ORDER-7",
		Amount:    "25.00",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLedgerPersistence)
}
