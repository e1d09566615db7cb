package stripe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mekongcart/checkout-service/internal/config"
	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *stripe.Client {
	return stripe.NewClient(config.StripeConfig{
		SecretKey:  "sk_test_secret",
		BaseURL:    baseURL,
		SuccessURL: "https://shop.example.com/success",
		CancelURL:  "https://shop.example.com/cancel",
		Timeout:    5 * time.Second,
	})
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "user-1", r.PostForm.Get("metadata[userId]"))
		assert.Equal(t, "https://shop.example.com/success", r.PostForm.Get("success_url"))
		assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "5000", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "Linen shirt", r.PostForm.Get("line_items[0][price_data][product_data][name]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "cs_test_1", "url": "https://checkout.example.com/cs_test_1"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	session, err := client.CreateCheckoutSession(context.Background(), stripe.CheckoutSessionParams{
		UserID: "user-1",
		LineItems: []stripe.LineItemParams{
			{Name: "Linen shirt", UnitAmount: 5000, Currency: "usd", Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "https://checkout.example.com/cs_test_1", session.URL)
}

func TestClient_ExpandLineItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/checkout/sessions/cs_test_1/line_items":
			_, _ = w.Write([]byte(`{"data": [
				{"id": "li_1", "quantity": 2, "amount_total": 10000, "price": {"unit_amount": 5000, "product": "prod_1"}},
				{"id": "li_2", "quantity": 1, "amount_total": 2500, "price": {"unit_amount": 2500, "product": "prod_missing"}}
			]}`))
		case "/v1/products/prod_1":
			_, _ = w.Write([]byte(`{"id": "prod_1", "name": "Linen shirt", "images": ["https://img.example.com/shirt.jpg"]}`))
		case "/v1/products/prod_missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": {"message": "No such product"}}`))
		default:
			t.Fatalf("unexpected request path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	expanded, err := client.ExpandLineItems(context.Background(), "cs_test_1")
	require.NoError(t, err)

	require.Len(t, expanded, 2)
	assert.Equal(t, stripe.ExpandedLineItem{
		Name:        "Linen shirt",
		Image:       "https://img.example.com/shirt.jpg",
		Quantity:    2,
		AmountTotal: 10000,
	}, expanded[0])
	// The unresolved product keeps quantity and amount, with empty detail.
	assert.Equal(t, stripe.ExpandedLineItem{Quantity: 1, AmountTotal: 2500}, expanded[1])
}

func TestClient_ExpandLineItems_ListingFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ExpandLineItems(context.Background(), "cs_test_1")
	assert.True(t, errors.Is(err, stripe.ErrUnavailable))
}

func TestClient_CreateCheckoutSession_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid currency"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateCheckoutSession(context.Background(), stripe.CheckoutSessionParams{})

	var apiErr *stripe.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid currency", apiErr.Message)
	assert.False(t, errors.Is(err, stripe.ErrUnavailable), "a definitive rejection is not a retryable outage")
}

func TestClient_UnreachableProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	_, err := client.ListLineItems(context.Background(), "cs_test_1")
	assert.True(t, errors.Is(err, stripe.ErrUnavailable))
}
