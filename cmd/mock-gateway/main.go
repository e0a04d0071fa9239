// mock-gateway is a local stand-in for the PayPal REST API, implementing just
// the endpoints the payments service calls. Point PAYPAL_BASE_URL at it for
// local runs; it accepts any credentials and verifies every signature.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/sichrplace/payments/internal/logging"
)

type order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []link `json:"links"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type store struct {
	mu     sync.Mutex
	orders map[string]*order
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	s := &store{orders: make(map[string]*order)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]any{
			"access_token": "mock-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PurchaseUnits []struct {
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PurchaseUnits) == 0 {
			respond(w, http.StatusBadRequest, map[string]string{"name": "INVALID_REQUEST"})
			return
		}

		o := &order{
			ID:     "MOCK-" + uuid.NewString(),
			Status: "CREATED",
		}
		o.Links = []link{{Href: "https://mock-gateway.local/approve/" + o.ID, Rel: "approve"}}

		s.mu.Lock()
		s.orders[o.ID] = o
		s.mu.Unlock()

		slog.Info("order created", "order_id", o.ID, "amount", req.PurchaseUnits[0].Amount.Value)
		respond(w, http.StatusCreated, o)
	})

	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		s.mu.Lock()
		o, ok := s.orders[id]
		if ok {
			o.Status = "COMPLETED"
		}
		s.mu.Unlock()

		if !ok {
			respond(w, http.StatusNotFound, map[string]string{"name": "RESOURCE_NOT_FOUND"})
			return
		}

		slog.Info("order captured", "order_id", id)
		respond(w, http.StatusCreated, map[string]any{
			"id":     id,
			"status": "COMPLETED",
			"payer":  map[string]string{"payer_id": "MOCKPAYER"},
			"purchase_units": []any{
				map[string]any{
					"payments": map[string]any{
						"captures": []any{
							map[string]any{
								"id":     "CAP-" + uuid.NewString(),
								"status": "COMPLETED",
								"amount": map[string]string{"value": "25.00", "currency_code": "EUR"},
								"seller_receivable_breakdown": map[string]any{
									"paypal_fee": map[string]string{"value": "1.02"},
									"net_amount": map[string]string{"value": "23.98"},
								},
							},
						},
					},
				},
			},
		})
	})

	mux.HandleFunc("POST /v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"verification_status": "SUCCESS"})
	})

	addr := ":8081"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}

	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode response:", err)
	}
}
