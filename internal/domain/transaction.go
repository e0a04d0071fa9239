package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const PaymentMethodPayPal = "paypal"

const DefaultCurrency = "EUR"

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusApproved  PaymentStatus = "approved"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusPending, PaymentStatusApproved,
		PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed,
		PaymentStatusRefunded:
		return true
	}
	return false
}

// MapGatewayStatus collapses the gateway's status vocabulary into the domain
// enum. The raw value is kept in gateway_status for audit; this mapping only
// decides what downstream business logic sees. Unrecognized statuses return
// false and the caller decides whether to keep the current domain status or
// reject.
func MapGatewayStatus(raw string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "created":
		return PaymentStatusCreated, true
	case "pending":
		return PaymentStatusPending, true
	case "approved":
		return PaymentStatusApproved, true
	case "completed":
		return PaymentStatusCompleted, true
	case "cancelled":
		return PaymentStatusCancelled, true
	case "failed":
		return PaymentStatusFailed, true
	case "refunded":
		return PaymentStatusRefunded, true
	case "denied", "declined", "voided", "expired":
		return PaymentStatusFailed, true
	case "success", "captured":
		return PaymentStatusCompleted, true
	case "partially_refunded":
		return PaymentStatusRefunded, true
	}
	return "", false
}

// PaymentTransaction is the ledger row, one per gateway order, keyed by
// PaymentID. It is the source of truth for what happened to a payment and is
// never hard-deleted.
type PaymentTransaction struct {
	PaymentID        string
	UserID           *uuid.UUID
	ViewingRequestID *string
	ApartmentID      *string
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    string
	Status           PaymentStatus
	GatewayStatus    *string
	GatewayResponse  json.RawMessage
	PayerID          *string
	TransactionID    *string
	RefundAmount     decimal.NullDecimal
	Fees             decimal.NullDecimal
	NetAmount        decimal.NullDecimal
	CompletedAt      *time.Time
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
