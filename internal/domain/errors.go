package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrGatewayAuth           = errors.New("gateway authentication failed")
	ErrGatewayRequest        = errors.New("gateway rejected the request")
	ErrInvalidWebhookHeaders = errors.New("missing or invalid webhook signature headers")
	ErrWebhookVerification   = errors.New("webhook signature verification failed")
	ErrCannotMaterialize     = errors.New("cannot materialize transaction without a valid amount")
	ErrLedgerPersistence     = errors.New("ledger persistence failed")
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrInvalidCurrency       = errors.New("currency must be a 3-letter ISO code")
	ErrInvalidRequest        = errors.New("invalid request")
)
