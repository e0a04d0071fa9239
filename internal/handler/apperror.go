package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrGatewayAuthFailed      = &AppError{http.StatusBadGateway, "GATEWAY_AUTH_FAILED", "Could not authenticate with the payment provider"}
	ErrGatewayRejected        = &AppError{http.StatusBadRequest, "GATEWAY_REJECTED", "The payment provider rejected the request"}
	ErrInvalidWebhookHeaders  = &AppError{http.StatusUnauthorized, "INVALID_WEBHOOK_HEADERS", "Required webhook signature headers are missing"}
	ErrWebhookVerifyFailed    = &AppError{http.StatusUnauthorized, "WEBHOOK_VERIFICATION_FAILED", "Webhook signature could not be verified"}
	ErrUnknownTransaction     = &AppError{http.StatusBadRequest, "UNKNOWN_TRANSACTION", "Transaction is unknown and the event carries no amount to create it"}
	ErrLedgerWriteFailed      = &AppError{http.StatusInternalServerError, "LEDGER_PERSISTENCE_FAILED", "Failed to persist the payment transaction"}
	ErrInvalidAmount          = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidCurrencyCode    = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Currency must be a 3-letter ISO code"}
)
