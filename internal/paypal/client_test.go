package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sichrplace/payments/internal/domain"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "client-id", "client-secret", "webhook-id", 5*time.Second)
	return srv, client
}

func tokenHandler(tokenCalls *atomic.Int32) func(w http.ResponseWriter, r *http.Request) bool {
	return func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path != "/v1/oauth2/token" {
			return false
		}
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
		return true
	}
}

func TestAccessToken_CachedUntilExpiry(t *testing.T) {
	var tokenCalls atomic.Int32
	handleToken := tokenHandler(&tokenCalls)

	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if handleToken(w, r) {
			return
		}
		http.NotFound(w, r)
	})

	tok1, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	tok2, err := client.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "test-token", tok1)
	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestAccessToken_BasicAuthAndErrors(t *testing.T) {
	t.Run("sends basic auth", func(t *testing.T) {
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
		})
		_, err := client.AccessToken(context.Background())
		require.NoError(t, err)
	})

	t.Run("non-200 is an auth error", func(t *testing.T) {
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.AccessToken(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrGatewayAuth)
	})

	t.Run("missing token is an auth error", func(t *testing.T) {
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"expires_in": 3600})
		})
		_, err := client.AccessToken(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrGatewayAuth)
	})
}

func TestCreateOrder(t *testing.T) {
	handleToken := tokenHandler(nil)

	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if handleToken(w, r) {
			return
		}
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
				CustomID string `json:"custom_id"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		require.Len(t, body.PurchaseUnits, 1)
		assert.Equal(t, "25.00", body.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "EUR", body.PurchaseUnits[0].Amount.CurrencyCode)
		assert.Equal(t, "vr-123", body.PurchaseUnits[0].CustomID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://gateway/self", "rel": "self"},
				{"href": "https://gateway/approve", "rel": "approve"},
			},
		})
	})

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount:   decimal.RequireFromString("25"),
		Currency: "eur",
		CustomID: "vr-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	assert.Equal(t, "CREATED", order.Status)
	assert.Equal(t, "https://gateway/approve", order.ApprovalURL)
	assert.NotEmpty(t, order.Raw)
}

func TestCreateOrder_Validation(t *testing.T) {
	client := NewClient("http://unused", "id", "secret", "wh", time.Second)

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: decimal.Zero, Currency: "EUR",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: decimal.RequireFromString("10"), Currency: "EURO",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestCreateOrder_GatewayRejection(t *testing.T) {
	handleToken := tokenHandler(nil)

	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if handleToken(w, r) {
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY"}`))
	})

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Amount: decimal.RequireFromString("10"), Currency: "EUR",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayRequest)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
	assert.Contains(t, string(reqErr.Body), "UNPROCESSABLE_ENTITY")
}

func TestCaptureOrder(t *testing.T) {
	handleToken := tokenHandler(nil)

	_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if handleToken(w, r) {
			return
		}
		require.Equal(t, "/v2/checkout/orders/ORDER-1/capture", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "COMPLETED",
			"payer":  map[string]string{"payer_id": "PAYER-1"},
			"purchase_units": []map[string]any{{
				"payments": map[string]any{
					"captures": []map[string]any{{
						"id":     "CAP-1",
						"status": "COMPLETED",
						"amount": map[string]string{"value": "25.00", "currency_code": "EUR"},
						"seller_receivable_breakdown": map[string]any{
							"paypal_fee": map[string]string{"value": "1.02"},
							"net_amount": map[string]string{"value": "23.98"},
						},
					}},
				},
			}},
		})
	})

	capture, err := client.CaptureOrder(context.Background(), "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", capture.OrderID)
	assert.Equal(t, "CAP-1", capture.CaptureID)
	assert.Equal(t, "COMPLETED", capture.Status)
	assert.Equal(t, "PAYER-1", capture.PayerID)
	assert.Equal(t, "25.00", capture.Amount)
	assert.Equal(t, "EUR", capture.Currency)
	assert.Equal(t, "1.02", capture.Fee)
	assert.Equal(t, "23.98", capture.Net)
}

func TestCaptureOrder_RequiresOrderID(t *testing.T) {
	client := NewClient("http://unused", "id", "secret", "wh", time.Second)
	_, err := client.CaptureOrder(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func signedHeaders() http.Header {
	h := http.Header{}
	h.Set("Paypal-Transmission-Id", "tid")
	h.Set("Paypal-Transmission-Time", "2026-03-01T12:00:00Z")
	h.Set("Paypal-Cert-Url", "https://api.paypal.com/cert")
	h.Set("Paypal-Auth-Algo", "SHA256withRSA")
	h.Set("Paypal-Transmission-Sig", "sig")
	return h
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		client := NewClient("http://unused", "id", "secret", "wh", time.Second)
		h := signedHeaders()
		h.Del("Paypal-Transmission-Sig")

		err := client.VerifyWebhookSignature(context.Background(), h, []byte(`{}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidWebhookHeaders)
	})

	t.Run("success", func(t *testing.T) {
		handleToken := tokenHandler(nil)
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if handleToken(w, r) {
				return
			}
			require.Equal(t, "/v1/notifications/verify-webhook-signature", r.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "webhook-id", body["webhook_id"])
			assert.Equal(t, "tid", body["transmission_id"])

			json.NewEncoder(w).Encode(map[string]string{"verification_status": "SUCCESS"})
		})

		err := client.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{"id":"WH-1"}`))
		assert.NoError(t, err)
	})

	t.Run("failure status", func(t *testing.T) {
		handleToken := tokenHandler(nil)
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if handleToken(w, r) {
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"verification_status": "FAILURE"})
		})

		err := client.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrWebhookVerification)
	})

	t.Run("endpoint error", func(t *testing.T) {
		handleToken := tokenHandler(nil)
		_, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if handleToken(w, r) {
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
		})

		err := client.VerifyWebhookSignature(context.Background(), signedHeaders(), []byte(`{}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrWebhookVerification)
	})
}
