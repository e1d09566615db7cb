package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/mekongcart/checkout-service/internal/checkout"
	"github.com/mekongcart/checkout-service/internal/handler"
	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCheckoutService struct {
	createCardFunc  func(ctx context.Context, userID uuid.UUID, req checkout.CardCheckoutRequest) (*checkout.CardCheckoutResult, error)
	createBankFunc  func(ctx context.Context, userID uuid.UUID, req checkout.BankTransferCheckoutRequest, clientIP string) (*checkout.BankTransferCheckoutResult, error)
	cardWebhookFunc func(ctx context.Context, payload []byte, sigHeader string) error
	bankReturnFunc  func(ctx context.Context, params map[string]string) (*checkout.ReturnResult, error)
	bankIPNFunc     func(ctx context.Context, params map[string]string) (checkout.IPNResult, error)
}

func (m *mockCheckoutService) CreateCardCheckout(ctx context.Context, userID uuid.UUID, req checkout.CardCheckoutRequest) (*checkout.CardCheckoutResult, error) {
	return m.createCardFunc(ctx, userID, req)
}

func (m *mockCheckoutService) CreateBankTransferCheckout(ctx context.Context, userID uuid.UUID, req checkout.BankTransferCheckoutRequest, clientIP string) (*checkout.BankTransferCheckoutResult, error) {
	return m.createBankFunc(ctx, userID, req, clientIP)
}

func (m *mockCheckoutService) HandleCardWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	return m.cardWebhookFunc(ctx, payload, sigHeader)
}

func (m *mockCheckoutService) HandleBankTransferReturn(ctx context.Context, params map[string]string) (*checkout.ReturnResult, error) {
	return m.bankReturnFunc(ctx, params)
}

func (m *mockCheckoutService) HandleBankTransferIPN(ctx context.Context, params map[string]string) (checkout.IPNResult, error) {
	return m.bankIPNFunc(ctx, params)
}

func newCheckoutRouter(svc checkout.Service) *chi.Mux {
	h := handler.NewCheckoutHandler(svc)
	r := chi.NewRouter()
	r.Post("/webhook", h.HandleStripeWebhook)
	r.Route("/api/v1", func(api chi.Router) {
		h.RegisterRoutes(api)
	})
	return r
}

func TestHandleStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		webhookErr error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "accepted",
			webhookErr: nil,
			wantStatus: http.StatusOK,
			wantBody:   `{"received":true}`,
		},
		{
			name:       "invalid_signature",
			webhookErr: stripe.ErrInvalidSignature,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid webhook signature"}`,
		},
		{
			name:       "provider_unreachable",
			webhookErr: stripe.ErrUnavailable,
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"Failed to process webhook event"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPayload []byte
			var gotHeader string
			svc := &mockCheckoutService{
				cardWebhookFunc: func(ctx context.Context, payload []byte, sigHeader string) error {
					gotPayload = payload
					gotHeader = sigHeader
					return tt.webhookErr
				},
			}
			router := newCheckoutRouter(svc)

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1700000000,v1=abc")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, `{"id":"evt_1"}`, string(gotPayload), "handler must pass the raw body through")
			assert.Equal(t, "t=1700000000,v1=abc", gotHeader)
		})
	}
}

func TestHandleVNPayIPN(t *testing.T) {
	t.Run("business_outcome_is_200", func(t *testing.T) {
		svc := &mockCheckoutService{
			bankIPNFunc: func(ctx context.Context, params map[string]string) (checkout.IPNResult, error) {
				assert.Equal(t, "00", params["vnp_ResponseCode"])
				return checkout.IPNResult{Code: "02", Message: "Order already updated"}, nil
			},
		}
		router := newCheckoutRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/vnpay/ipn?vnp_ResponseCode=00&vnp_TxnRef=abc", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"code":"02","message":"Order already updated"}`, rec.Body.String())
	})

	t.Run("infrastructure_failure_is_500", func(t *testing.T) {
		svc := &mockCheckoutService{
			bankIPNFunc: func(ctx context.Context, params map[string]string) (checkout.IPNResult, error) {
				return checkout.IPNResult{}, assert.AnError
			},
		}
		router := newCheckoutRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/vnpay/ipn?vnp_ResponseCode=00", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleVNPayReturn(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &mockCheckoutService{
			bankReturnFunc: func(ctx context.Context, params map[string]string) (*checkout.ReturnResult, error) {
				return &checkout.ReturnResult{Code: "00", Message: "Success"}, nil
			},
		}
		router := newCheckoutRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/vnpay/return?vnp_ResponseCode=00", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"code":"00","message":"Success"}`, rec.Body.String())
	})

	t.Run("invalid_signature", func(t *testing.T) {
		svc := &mockCheckoutService{
			bankReturnFunc: func(ctx context.Context, params map[string]string) (*checkout.ReturnResult, error) {
				return nil, checkout.ErrInvalidSignature
			},
		}
		router := newCheckoutRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/vnpay/return?vnp_SecureHash=bogus", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"code":"97"}`, rec.Body.String())
	})
}

func TestHandleCreateCardCheckout(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &mockCheckoutService{
			createCardFunc: func(ctx context.Context, userID uuid.UUID, req checkout.CardCheckoutRequest) (*checkout.CardCheckoutResult, error) {
				assert.Equal(t, "123e4567-e89b-42d3-a456-426614174000", userID.String())
				require.Len(t, req.Items, 1)
				assert.Equal(t, int64(5000), req.Items[0].Price)
				return &checkout.CardCheckoutResult{SessionID: "cs_1", SessionURL: "https://pay.example.com/cs_1"}, nil
			},
		}
		router := newCheckoutRouter(svc)

		body := `{"user_id":"123e4567-e89b-42d3-a456-426614174000","items":[{"name":"Linen shirt","price":5000,"quantity":1}]}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/stripe", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"session_id":"cs_1","session_url":"https://pay.example.com/cs_1"}`, rec.Body.String())
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			body string
		}{
			{name: "missing_user_id", body: `{"items":[{"name":"x","price":1,"quantity":1}]}`},
			{name: "user_id_not_uuid", body: `{"user_id":"nope","items":[{"name":"x","price":1,"quantity":1}]}`},
			{name: "empty_items", body: `{"user_id":"123e4567-e89b-42d3-a456-426614174000","items":[]}`},
			{name: "zero_price", body: `{"user_id":"123e4567-e89b-42d3-a456-426614174000","items":[{"name":"x","price":0,"quantity":1}]}`},
			{name: "unknown_field", body: `{"user_id":"123e4567-e89b-42d3-a456-426614174000","items":[{"name":"x","price":1,"quantity":1}],"extra":true}`},
			{name: "not_json", body: `user_id=abc`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := &mockCheckoutService{
					createCardFunc: func(ctx context.Context, userID uuid.UUID, req checkout.CardCheckoutRequest) (*checkout.CardCheckoutResult, error) {
						t.Fatal("invalid request must not reach the service")
						return nil, nil
					},
				}
				router := newCheckoutRouter(svc)

				req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/stripe", strings.NewReader(tt.body))
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, req)

				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestHandleCreateBankTransferCheckout(t *testing.T) {
	body := `{
		"user_id": "123e4567-e89b-42d3-a456-426614174000",
		"items": [{"name": "Linen shirt", "price": 100000, "quantity": 2}],
		"tax": 30000,
		"shipping_fee": 20000,
		"customer_info": {"name": "Jane", "email": "jane@example.com"},
		"receiver_info": {"name": "Jane", "email": "jane@example.com"},
		"shipping_address": {"city": "Hanoi", "country": "VN", "line1": "1 Pho Hue"},
		"bank_code": "NCB"
	}`

	svc := &mockCheckoutService{
		createBankFunc: func(ctx context.Context, userID uuid.UUID, req checkout.BankTransferCheckoutRequest, clientIP string) (*checkout.BankTransferCheckoutResult, error) {
			assert.Equal(t, int64(30000), req.Tax)
			assert.Equal(t, int64(20000), req.ShippingFee)
			assert.Equal(t, "NCB", req.BankCode)
			assert.Equal(t, "Hanoi", req.ShippingAddress.City)
			assert.Equal(t, "203.0.113.7", clientIP)
			return &checkout.BankTransferCheckoutResult{PaymentURL: "https://pay.example.com/x"}, nil
		},
	}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/vnpay", strings.NewReader(body))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
