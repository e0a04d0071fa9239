package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
)

type notificationRepo interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// Notifier writes user notifications as a best-effort side effect. Failures
// are logged at this call site and never reach the payment flow that
// triggered them; the ledger row is the primary record, the notification is
// not.
type Notifier struct {
	notifications notificationRepo
}

func NewNotifier(notifications notificationRepo) *Notifier {
	return &Notifier{notifications: notifications}
}

func (n *Notifier) Notify(ctx context.Context, t *domain.PaymentTransaction, typ domain.NotificationType, title, message string) {
	log := logging.FromContext(ctx)

	if t.UserID == nil {
		log.Info("skipping notification, transaction has no user", "payment_id", t.PaymentID, "type", typ)
		return
	}

	related := t.PaymentID
	if t.ViewingRequestID != nil {
		related = *t.ViewingRequestID
	}

	notification := &domain.Notification{
		ID:              uuid.New(),
		UserID:          *t.UserID,
		Type:            typ,
		Title:           title,
		Message:         message,
		RelatedEntityID: &related,
		CreatedAt:       time.Now().UTC(),
	}

	if err := n.notifications.Create(ctx, notification); err != nil {
		log.Error("failed to store notification",
			"error", err,
			"payment_id", t.PaymentID,
			"type", typ,
		)
	}
}
