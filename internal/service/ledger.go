package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
)

type transactionRepo interface {
	Ensure(ctx context.Context, t *domain.PaymentTransaction) error
	Update(ctx context.Context, t *domain.PaymentTransaction) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentTransaction, error)
}

// PaymentUpdate is the normalized event record both write paths produce: the
// direct capture flow and the webhook reconciler. Empty strings mean "no fresh
// data for this field" and leave the stored value untouched.
type PaymentUpdate struct {
	PaymentID        string
	UserID           *uuid.UUID
	ViewingRequestID string
	ApartmentID      string

	// Amount fields arrive as raw gateway strings; values that do not parse
	// to a finite decimal are dropped field-wise, never stored.
	Amount       string
	Currency     string
	RefundAmount string
	Fees         string
	NetAmount    string

	// Status is an already-resolved domain status (webhook path, where the
	// event type decides). When unset, GatewayStatus is run through the
	// mapper instead.
	Status        domain.PaymentStatus
	GatewayStatus string

	GatewayResponse json.RawMessage
	PayerID         string
	TransactionID   string

	// OccurredAt stamps completed_at / refunded_at on the corresponding
	// transition; zero means now.
	OccurredAt time.Time
}

// Ledger is the single mutation path for payment_transactions. Capture
// responses and webhooks both funnel through RecordEvent, so whichever
// arrives first establishes the canonical state and the other applies as an
// idempotent field-wise merge.
type Ledger struct {
	transactions transactionRepo
}

func NewLedger(transactions transactionRepo) *Ledger {
	return &Ledger{transactions: transactions}
}

func (l *Ledger) RecordEvent(ctx context.Context, upd PaymentUpdate) (*domain.PaymentTransaction, error) {
	log := logging.FromContext(ctx)

	if upd.PaymentID == "" {
		return nil, fmt.Errorf("RecordEvent: %w: payment id is required", domain.ErrInvalidRequest)
	}

	status := upd.Status
	if status == "" && upd.GatewayStatus != "" {
		mapped, ok := domain.MapGatewayStatus(upd.GatewayStatus)
		if ok {
			status = mapped
		} else {
			// The raw value still lands in gateway_status for audit; the
			// domain status is left as it was.
			log.Warn("unmapped gateway status",
				"payment_id", upd.PaymentID,
				"gateway_status", upd.GatewayStatus,
			)
		}
	}

	existing, err := l.transactions.GetByPaymentID(ctx, upd.PaymentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("RecordEvent: %w: %w", domain.ErrLedgerPersistence, err)
	}

	if existing == nil {
		return l.materialize(ctx, upd, status)
	}

	merged := *existing
	applyUpdate(&merged, upd, status)

	if err := l.transactions.Update(ctx, &merged); err != nil {
		return nil, fmt.Errorf("RecordEvent: %w: %w", domain.ErrLedgerPersistence, err)
	}
	return &merged, nil
}

func (l *Ledger) Get(ctx context.Context, paymentID string) (*domain.PaymentTransaction, error) {
	t, err := l.transactions.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return t, nil
}

func (l *Ledger) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentTransaction, error) {
	list, err := l.transactions.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ListForUser: %w: %w", domain.ErrLedgerPersistence, err)
	}
	return list, nil
}

// materialize creates the ledger row for a payment we have not seen. A row
// cannot exist without a known amount, so an event that carries none is
// rejected rather than guessed at.
func (l *Ledger) materialize(ctx context.Context, upd PaymentUpdate, status domain.PaymentStatus) (*domain.PaymentTransaction, error) {
	amount, ok := parseAmount(upd.Amount)
	if !ok {
		return nil, fmt.Errorf("RecordEvent: %w", domain.ErrCannotMaterialize)
	}

	t := &domain.PaymentTransaction{
		PaymentID:     upd.PaymentID,
		UserID:        upd.UserID,
		Amount:        amount,
		Currency:      domain.DefaultCurrency,
		PaymentMethod: domain.PaymentMethodPayPal,
		Status:        domain.PaymentStatusCreated,
	}
	applyUpdate(t, upd, status)

	if err := l.transactions.Ensure(ctx, t); err != nil {
		return nil, fmt.Errorf("RecordEvent: %w: %w", domain.ErrLedgerPersistence, err)
	}

	// Re-read: a concurrent writer may have merged into the same row.
	stored, err := l.transactions.GetByPaymentID(ctx, upd.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("RecordEvent: %w: %w", domain.ErrLedgerPersistence, err)
	}
	return stored, nil
}

// applyUpdate merges only the fields the update has fresh data for. Blanket
// overwrites with empty values would let a late-arriving webhook erase what a
// capture call already recorded, and vice versa.
func applyUpdate(t *domain.PaymentTransaction, upd PaymentUpdate, status domain.PaymentStatus) {
	if amount, ok := parseAmount(upd.Amount); ok {
		t.Amount = amount
	}
	if upd.Currency != "" {
		t.Currency = strings.ToUpper(upd.Currency)
	}
	if upd.UserID != nil {
		t.UserID = upd.UserID
	}
	if upd.ViewingRequestID != "" {
		v := upd.ViewingRequestID
		t.ViewingRequestID = &v
	}
	if upd.ApartmentID != "" {
		v := upd.ApartmentID
		t.ApartmentID = &v
	}
	if status.IsValid() {
		t.Status = status
	}
	if upd.GatewayStatus != "" {
		v := upd.GatewayStatus
		t.GatewayStatus = &v
	}
	if len(upd.GatewayResponse) > 0 {
		t.GatewayResponse = upd.GatewayResponse
	}
	if upd.PayerID != "" {
		v := upd.PayerID
		t.PayerID = &v
	}
	if upd.TransactionID != "" {
		v := upd.TransactionID
		t.TransactionID = &v
	}
	if v, ok := parseAmount(upd.RefundAmount); ok {
		t.RefundAmount = decimal.NullDecimal{Decimal: v, Valid: true}
	}
	if v, ok := parseAmount(upd.Fees); ok {
		t.Fees = decimal.NullDecimal{Decimal: v, Valid: true}
	}
	if v, ok := parseAmount(upd.NetAmount); ok {
		t.NetAmount = decimal.NullDecimal{Decimal: v, Valid: true}
	}

	occurred := upd.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	if t.Status == domain.PaymentStatusCompleted && t.CompletedAt == nil {
		t.CompletedAt = &occurred
	}
	if t.Status == domain.PaymentStatusRefunded && t.RefundedAt == nil {
		t.RefundedAt = &occurred
	}
}

// parseAmount accepts the gateway's string-typed amounts. Anything that is not
// a finite decimal is reported as absent; amounts are 2-fraction-digit
// decimals by convention, never floats.
func parseAmount(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}
