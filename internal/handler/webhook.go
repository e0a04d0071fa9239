package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
	"github.com/sichrplace/payments/internal/service"
)

type signatureVerifier interface {
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error
}

type webhookReconciler interface {
	Process(ctx context.Context, event service.WebhookEvent, raw json.RawMessage) (*service.Outcome, error)
}

// WebhookHandler receives gateway-signed events. There is no caller auth on
// this route; authenticity comes from the transmission signature.
type WebhookHandler struct {
	verifier   signatureVerifier
	reconciler webhookReconciler
	verify     bool
}

func NewWebhookHandler(verifier signatureVerifier, reconciler webhookReconciler, verify bool) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, reconciler: reconciler, verify: verify}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if h.verify {
		if err := h.verifier.VerifyWebhookSignature(r.Context(), r.Header, body); err != nil {
			if errors.Is(err, domain.ErrInvalidWebhookHeaders) {
				log.Warn("webhook rejected, signature headers missing", "error", err)
				RespondAppError(w, ErrInvalidWebhookHeaders, nil)
				return
			}
			log.Warn("webhook signature verification failed", "error", err)
			RespondAppError(w, ErrWebhookVerifyFailed, nil)
			return
		}
	} else {
		log.Debug("webhook signature verification skipped")
	}

	var event service.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if event.EventType == "" {
		RespondValidationError(w, []FieldError{{Field: "event_type", Message: "required"}})
		return
	}

	outcome, err := h.reconciler.Process(r.Context(), event, body)
	if err != nil {
		log.Error("webhook processing failed", "error", err, "event_id", event.ID, "event_type", event.EventType)
		RespondDomainError(w, err, nil)
		return
	}

	message := "event ignored"
	if outcome.Handled {
		message = "event processed"
	}

	// Always 200 once processing finished, including ignored event types;
	// anything else triggers gateway redelivery.
	RespondSuccess(w, http.StatusOK, map[string]any{
		"message":   message,
		"eventType": event.EventType,
		"processed": outcome.Handled,
	})
}
