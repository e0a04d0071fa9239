package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// WebhookEvent is the subset of a gateway webhook delivery the reconciler
// acts on.
type WebhookEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime time.Time       `json:"create_time"`
	Resource   webhookResource `json:"resource"`
}

type money struct {
	Value        string `json:"value"`
	CurrencyCode string `json:"currency_code"`
}

type webhookResource struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CustomID  string `json:"custom_id"`
	InvoiceID string `json:"invoice_id"`
	Amount    *money `json:"amount"`
	Payer     *struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
	SellerReceivableBreakdown *struct {
		PayPalFee money `json:"paypal_fee"`
		NetAmount money `json:"net_amount"`
	} `json:"seller_receivable_breakdown"`
	SupplementaryData *struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type ledgerService interface {
	RecordEvent(ctx context.Context, upd PaymentUpdate) (*domain.PaymentTransaction, error)
}

type notifierService interface {
	Notify(ctx context.Context, t *domain.PaymentTransaction, typ domain.NotificationType, title, message string)
}

// Outcome reports whether an event mutated the ledger. Unhandled event types
// are accepted and ignored, not errors; rejecting them would only provoke
// gateway redelivery storms.
type Outcome struct {
	Handled     bool
	Transaction *domain.PaymentTransaction
}

// Reconciler interprets asynchronous gateway events and drives the per-payment
// state machine through the ledger.
type Reconciler struct {
	ledger   ledgerService
	notifier notifierService
}

func NewReconciler(ledger ledgerService, notifier notifierService) *Reconciler {
	return &Reconciler{ledger: ledger, notifier: notifier}
}

func (r *Reconciler) Process(ctx context.Context, event WebhookEvent, raw json.RawMessage) (*Outcome, error) {
	log := logging.FromContext(ctx)

	switch event.EventType {
	case EventCaptureCompleted, EventCaptureDenied, EventCaptureRefunded:
	default:
		log.Info("ignoring webhook event type", "event_id", event.ID, "event_type", event.EventType)
		return &Outcome{Handled: false}, nil
	}

	paymentID, source := resolvePaymentID(event.Resource)
	if paymentID == "" {
		return nil, fmt.Errorf("Process: %w: event carries no payment reference", domain.ErrInvalidRequest)
	}
	if source != "order_id" {
		// Different event types surface the order id under different fields;
		// which one is authoritative is undocumented upstream, so record when
		// the heuristic had to fall back.
		log.Warn("payment id resolved from fallback field",
			"event_id", event.ID,
			"event_type", event.EventType,
			"field", source,
			"payment_id", paymentID,
		)
	}

	upd := PaymentUpdate{
		PaymentID:       paymentID,
		GatewayStatus:   event.Resource.Status,
		GatewayResponse: raw,
		OccurredAt:      event.CreateTime,
	}
	if event.Resource.Payer != nil {
		upd.PayerID = event.Resource.Payer.PayerID
	}

	var notifType domain.NotificationType
	var title, message string

	switch event.EventType {
	case EventCaptureCompleted:
		upd.Status = domain.PaymentStatusCompleted
		upd.TransactionID = event.Resource.ID
		if event.Resource.Amount != nil {
			upd.Amount = event.Resource.Amount.Value
			upd.Currency = event.Resource.Amount.CurrencyCode
		}
		if b := event.Resource.SellerReceivableBreakdown; b != nil {
			upd.Fees = b.PayPalFee.Value
			upd.NetAmount = b.NetAmount.Value
		}
		notifType = domain.NotificationTypePaymentSuccess
		title = "Payment received"
		message = "Your viewing request payment was completed."

	case EventCaptureDenied:
		upd.Status = domain.PaymentStatusFailed
		notifType = domain.NotificationTypePaymentFailed
		title = "Payment failed"
		message = "Your viewing request payment was declined by the payment provider."

	case EventCaptureRefunded:
		upd.Status = domain.PaymentStatusRefunded
		if event.Resource.Amount != nil {
			upd.RefundAmount = event.Resource.Amount.Value
		}
		notifType = domain.NotificationTypePaymentRefunded
		title = "Payment refunded"
		message = "Your viewing request payment was refunded."
	}

	t, err := r.ledger.RecordEvent(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	log.Info("webhook event reconciled",
		"event_id", event.ID,
		"event_type", event.EventType,
		"payment_id", paymentID,
		"status", t.Status,
	)

	r.notifier.Notify(ctx, t, notifType, title, message)

	return &Outcome{Handled: true, Transaction: t}, nil
}

// resolvePaymentID finds the gateway order id a webhook event refers to.
// Priority order: related-order id, custom id, invoice id, the resource's own
// id. Best-effort heuristic; callers log when a fallback field was used.
func resolvePaymentID(res webhookResource) (string, string) {
	if res.SupplementaryData != nil && res.SupplementaryData.RelatedIDs.OrderID != "" {
		return res.SupplementaryData.RelatedIDs.OrderID, "order_id"
	}
	if res.CustomID != "" {
		return res.CustomID, "custom_id"
	}
	if res.InvoiceID != "" {
		return res.InvoiceID, "invoice_id"
	}
	if res.ID != "" {
		return res.ID, "resource_id"
	}
	return "", ""
}
