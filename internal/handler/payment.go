package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sichrplace/payments/internal/auth"
	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
	"github.com/sichrplace/payments/internal/paypal"
	"github.com/sichrplace/payments/internal/service"
)

type gatewayClient interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
}

type paymentLedger interface {
	RecordEvent(ctx context.Context, upd service.PaymentUpdate) (*domain.PaymentTransaction, error)
	Get(ctx context.Context, paymentID string) (*domain.PaymentTransaction, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentTransaction, error)
}

type paymentNotifier interface {
	Notify(ctx context.Context, t *domain.PaymentTransaction, typ domain.NotificationType, title, message string)
}

type PaymentHandler struct {
	gateway     gatewayClient
	ledger      paymentLedger
	notifier    paymentNotifier
	clientID    string
	environment string
	production  bool
}

func NewPaymentHandler(gateway gatewayClient, ledger paymentLedger, notifier paymentNotifier, clientID, environment string, production bool) *PaymentHandler {
	return &PaymentHandler{
		gateway:     gateway,
		ledger:      ledger,
		notifier:    notifier,
		clientID:    clientID,
		environment: environment,
		production:  production,
	}
}

type createPaymentRequest struct {
	// decimal.Decimal accepts both "25.00" and 25.00; gateway responses use
	// strings, browser clients tend to send numbers.
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Description      string          `json:"description"`
	ApartmentID      string          `json:"apartmentId"`
	ViewingRequestID string          `json:"viewingRequestId"`
	ReturnURL        string          `json:"returnUrl"`
	CancelURL        string          `json:"cancelUrl"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if r.Currency != "" && !isCurrencyCode(r.Currency) {
		errs = append(errs, FieldError{Field: "currency", Message: "must be a 3-letter ISO code"})
	}
	if len(r.Description) > 200 {
		errs = append(errs, FieldError{Field: "description", Message: "must be at most 200 characters"})
	}

	return errs
}

type capturePaymentRequest struct {
	OrderID          string `json:"orderId"`
	PaymentID        string `json:"paymentId"`
	PayerID          string `json:"payerId"`
	ViewingRequestID string `json:"viewingRequestId"`
	ApartmentID      string `json:"apartmentId"`
}

func (r capturePaymentRequest) orderID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.PaymentID
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	order, err := h.gateway.CreateOrder(r.Context(), paypal.CreateOrderRequest{
		Amount:      req.Amount,
		Currency:    currency,
		Description: req.Description,
		CustomID:    req.ViewingRequestID,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		log.Warn("order creation failed", "error", err)
		RespondDomainError(w, err, h.gatewayDetails(err))
		return
	}

	t, err := h.ledger.RecordEvent(r.Context(), service.PaymentUpdate{
		PaymentID:        order.ID,
		UserID:           &userID,
		ViewingRequestID: req.ViewingRequestID,
		ApartmentID:      req.ApartmentID,
		Amount:           req.Amount.StringFixed(2),
		Currency:         currency,
		GatewayStatus:    order.Status,
		GatewayResponse:  order.Raw,
	})
	if err != nil {
		log.Error("failed to record created order", "error", err, "order_id", order.ID)
		RespondDomainError(w, err, nil)
		return
	}

	RespondSuccess(w, http.StatusCreated, map[string]any{
		"orderId":      order.ID,
		"approvalUrl":  order.ApprovalURL,
		"status":       t.Status,
		"orderDetails": json.RawMessage(order.Raw),
	})
}

func (h *PaymentHandler) Capture(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req capturePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	orderID := req.orderID()
	if orderID == "" {
		RespondValidationError(w, []FieldError{{Field: "orderId", Message: "required"}})
		return
	}

	capture, err := h.gateway.CaptureOrder(r.Context(), orderID)
	if err != nil {
		log.Warn("order capture failed", "error", err, "order_id", orderID)
		RespondDomainError(w, err, h.gatewayDetails(err))
		return
	}

	t, err := h.ledger.RecordEvent(r.Context(), service.PaymentUpdate{
		PaymentID:        orderID,
		UserID:           &userID,
		ViewingRequestID: req.ViewingRequestID,
		ApartmentID:      req.ApartmentID,
		Amount:           capture.Amount,
		Currency:         capture.Currency,
		Fees:             capture.Fee,
		NetAmount:        capture.Net,
		GatewayStatus:    capture.Status,
		GatewayResponse:  capture.Raw,
		PayerID:          capture.PayerID,
		TransactionID:    capture.CaptureID,
	})
	if err != nil {
		log.Error("failed to record capture", "error", err, "order_id", orderID)
		RespondDomainError(w, err, nil)
		return
	}

	if t.Status == domain.PaymentStatusCompleted {
		h.notifier.Notify(r.Context(), t, domain.NotificationTypePaymentSuccess,
			"Payment received", "Your viewing request payment was completed.")
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":         t.Status,
		"orderId":        orderID,
		"captureDetails": json.RawMessage(capture.Raw),
	})
}

func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID := r.PathValue("paymentId")
	if paymentID == "" {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	t, err := h.ledger.Get(r.Context(), paymentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logging.FromContext(r.Context()).Error("transaction lookup failed", "error", err)
		}
		RespondDomainError(w, err, nil)
		return
	}

	// Transactions are visible to their owner only.
	if t.UserID == nil || *t.UserID != userID {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(t))
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListTransactions returns the caller's payment history, newest first.
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be an integer between 1 and 100"}})
			return
		}
		limit = n
	}

	list, err := h.ledger.ListForUser(r.Context(), userID, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("transaction listing failed", "error", err)
		RespondDomainError(w, err, nil)
		return
	}

	dtos := make([]transactionDTO, 0, len(list))
	for i := range list {
		dtos = append(dtos, toTransactionDTO(&list[i]))
	}

	RespondSuccess(w, http.StatusOK, map[string]any{"transactions": dtos})
}

// Config exposes what a browser needs to start a PayPal checkout. Public by
// design; the client id is not a secret.
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	RespondSuccess(w, http.StatusOK, map[string]string{
		"clientId":    h.clientID,
		"environment": h.environment,
	})
}

// gatewayDetails exposes the gateway's raw error payload outside production
// only.
func (h *PaymentHandler) gatewayDetails(err error) any {
	if h.production {
		return nil
	}
	var reqErr *paypal.RequestError
	if errors.As(err, &reqErr) && len(reqErr.Body) > 0 {
		return json.RawMessage(reqErr.Body)
	}
	return nil
}

type transactionDTO struct {
	PaymentID        string     `json:"paymentId"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	PaymentMethod    string     `json:"paymentMethod"`
	Status           string     `json:"status"`
	GatewayStatus    *string    `json:"gatewayStatus,omitempty"`
	PayerID          *string    `json:"payerId,omitempty"`
	TransactionID    *string    `json:"transactionId,omitempty"`
	ViewingRequestID *string    `json:"viewingRequestId,omitempty"`
	ApartmentID      *string    `json:"apartmentId,omitempty"`
	RefundAmount     *string    `json:"refundAmount,omitempty"`
	Fees             *string    `json:"fees,omitempty"`
	NetAmount        *string    `json:"netAmount,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	RefundedAt       *time.Time `json:"refundedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toTransactionDTO(t *domain.PaymentTransaction) transactionDTO {
	dto := transactionDTO{
		PaymentID:        t.PaymentID,
		Amount:           t.Amount.StringFixed(2),
		Currency:         t.Currency,
		PaymentMethod:    t.PaymentMethod,
		Status:           string(t.Status),
		GatewayStatus:    t.GatewayStatus,
		PayerID:          t.PayerID,
		TransactionID:    t.TransactionID,
		ViewingRequestID: t.ViewingRequestID,
		ApartmentID:      t.ApartmentID,
		CompletedAt:      t.CompletedAt,
		RefundedAt:       t.RefundedAt,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
	if t.RefundAmount.Valid {
		v := t.RefundAmount.Decimal.StringFixed(2)
		dto.RefundAmount = &v
	}
	if t.Fees.Valid {
		v := t.Fees.Decimal.StringFixed(2)
		dto.Fees = &v
	}
	if t.NetAmount.Valid {
		v := t.NetAmount.Decimal.StringFixed(2)
		dto.NetAmount = &v
	}
	return dto
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
