package paypal

import (
	"fmt"

	"github.com/sichrplace/payments/internal/domain"
)

// RequestError carries the gateway's HTTP status and raw error payload.
// Handlers expose the payload to callers only outside production.
type RequestError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway request failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway request failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return domain.ErrGatewayRequest
}
