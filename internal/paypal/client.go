// Package paypal wraps the three PayPal REST calls this service needs:
// order creation, order capture, and webhook signature verification.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sichrplace/payments/internal/domain"
	"github.com/sichrplace/payments/internal/logging"
)

// Refresh the cached bearer token this long before its declared expiry.
const tokenExpirySlack = 60 * time.Second

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	webhookID    string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(baseURL, clientID, clientSecret, webhookID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    webhookID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccessToken exchanges the client credentials for a bearer token, caching it
// until shortly before the declared expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("AccessToken: build request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("AccessToken: %w: %w", domain.ErrGatewayAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("AccessToken: %w: status %d: %s", domain.ErrGatewayAuth, resp.StatusCode, body)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("AccessToken: %w: decode: %w", domain.ErrGatewayAuth, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("AccessToken: %w: response missing access_token", domain.ErrGatewayAuth)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.accessToken, nil
}

type CreateOrderRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	// CustomID carries the viewing request reference so webhooks can be
	// correlated back to the marketplace entity.
	CustomID  string
	InvoiceID string
	ReturnURL string
	CancelURL string
}

type Order struct {
	ID          string
	Status      string
	ApprovalURL string
	Raw         json.RawMessage
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("CreateOrder: %w", domain.ErrInvalidAmount)
	}
	if len(req.Currency) != 3 {
		return nil, fmt.Errorf("CreateOrder: %w", domain.ErrInvalidCurrency)
	}
	if len(req.Description) > 200 {
		return nil, fmt.Errorf("CreateOrder: %w: description exceeds 200 characters", domain.ErrInvalidRequest)
	}

	unit := map[string]any{
		"amount": map[string]string{
			"currency_code": strings.ToUpper(req.Currency),
			"value":         req.Amount.StringFixed(2),
		},
	}
	if req.Description != "" {
		unit["description"] = req.Description
	}
	if req.CustomID != "" {
		unit["custom_id"] = req.CustomID
	}
	if req.InvoiceID != "" {
		unit["invoice_id"] = req.InvoiceID
	}

	payload := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []any{unit},
	}
	if req.ReturnURL != "" || req.CancelURL != "" {
		payload["application_context"] = map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		}
	}

	raw, err := c.post(ctx, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, fmt.Errorf("CreateOrder: %w", err)
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("CreateOrder: decode: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("CreateOrder: %w: response missing order id", domain.ErrGatewayRequest)
	}

	order := &Order{ID: resp.ID, Status: resp.Status, Raw: raw}
	for _, l := range resp.Links {
		if l.Rel == "approve" {
			order.ApprovalURL = l.Href
			break
		}
	}
	return order, nil
}

type Capture struct {
	OrderID   string
	CaptureID string
	Status    string
	PayerID   string
	Amount    string
	Currency  string
	Fee       string
	Net       string
	Raw       json.RawMessage
}

type captureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
				SellerReceivableBreakdown *struct {
					PayPalFee struct {
						Value string `json:"value"`
					} `json:"paypal_fee"`
					NetAmount struct {
						Value string `json:"value"`
					} `json:"net_amount"`
				} `json:"seller_receivable_breakdown"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	if orderID == "" {
		return nil, fmt.Errorf("CaptureOrder: %w: order id is required", domain.ErrInvalidRequest)
	}

	raw, err := c.post(ctx, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil)
	if err != nil {
		return nil, fmt.Errorf("CaptureOrder: %w", err)
	}

	var resp captureResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("CaptureOrder: decode: %w", err)
	}

	capture := &Capture{
		OrderID: resp.ID,
		Status:  resp.Status,
		PayerID: resp.Payer.PayerID,
		Raw:     raw,
	}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		cap := resp.PurchaseUnits[0].Payments.Captures[0]
		capture.CaptureID = cap.ID
		capture.Amount = cap.Amount.Value
		capture.Currency = cap.Amount.CurrencyCode
		if cap.Status != "" {
			capture.Status = cap.Status
		}
		if b := cap.SellerReceivableBreakdown; b != nil {
			capture.Fee = b.PayPalFee.Value
			capture.Net = b.NetAmount.Value
		}
	}
	return capture, nil
}

// The five headers PayPal signs every webhook delivery with.
var signatureHeaders = []string{
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
	"Paypal-Transmission-Sig",
}

type verifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// VerifyWebhookSignature calls PayPal's verification endpoint with the
// delivery headers and raw body. Anything short of an explicit SUCCESS is a
// verification failure; the event must not be processed.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	for _, h := range signatureHeaders {
		if headers.Get(h) == "" {
			return fmt.Errorf("VerifyWebhookSignature: %w: %s", domain.ErrInvalidWebhookHeaders, h)
		}
	}

	var event json.RawMessage = body
	payload := map[string]any{
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"webhook_id":        c.webhookID,
		"webhook_event":     event,
	}

	raw, err := c.post(ctx, "/v1/notifications/verify-webhook-signature", payload)
	if err != nil {
		return fmt.Errorf("VerifyWebhookSignature: %w: %w", domain.ErrWebhookVerification, err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("VerifyWebhookSignature: %w: decode: %w", domain.ErrWebhookVerification, err)
	}
	if resp.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("VerifyWebhookSignature: %w: status %q", domain.ErrWebhookVerification, resp.VerificationStatus)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	log := logging.FromContext(ctx)

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("send: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	log.Info("gateway response received",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: raw}
	}
	return raw, nil
}
