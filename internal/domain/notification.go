package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypePaymentSuccess  NotificationType = "payment_success"
	NotificationTypePaymentFailed   NotificationType = "payment_failed"
	NotificationTypePaymentRefunded NotificationType = "payment_refunded"
)

// Notification is a best-effort side record: a failure to write one is logged
// and never propagated to the payment flow that triggered it.
type Notification struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Type            NotificationType
	Title           string
	Message         string
	RelatedEntityID *string
	Read            bool
	CreatedAt       time.Time
}
