package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mekongcart/checkout-service/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable marks transport-level failures against the provider API:
// the caller must surface these for retry, never treat them as an empty
// result.
var ErrUnavailable = errors.New("payment provider unreachable")

// APIError is a definitive (non-retryable) rejection from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: api error (status %d): %s", e.StatusCode, e.Message)
}

type Client struct {
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

func NewClient(cfg config.StripeConfig) *Client {
	return &Client{
		secretKey:  cfg.SecretKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type LineItemParams struct {
	Name       string
	Image      string
	UnitAmount int64
	Currency   string
	Quantity   int64
}

type CheckoutSessionParams struct {
	UserID     string
	LineItems  []LineItemParams
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession opens a hosted checkout session for the given line
// items, tagging it with the local user id so the webhook can attribute the
// resulting order.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	successURL := params.SuccessURL
	if successURL == "" {
		successURL = c.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = c.cancelURL
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("metadata[userId]", params.UserID)
	form.Set("phone_number_collection[enabled]", "true")
	form.Set("billing_address_collection", "required")

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[quantity]", strconv.FormatInt(item.Quantity, 10))
		form.Set(prefix+"[price_data][currency]", item.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		if item.Image != "" {
			form.Set(prefix+"[price_data][product_data][images][0]", item.Image)
		}
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return nil, err
	}

	return &session, nil
}

// ListLineItems fetches the purchased line items of a session.
func (c *Client) ListLineItems(ctx context.Context, sessionID string) ([]LineItem, error) {
	var list struct {
		Data []LineItem `json:"data"`
	}
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "/line_items"
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	return list.Data, nil
}

// GetProduct resolves a product reference to its name and images.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	path := "/v1/products/" + url.PathEscape(productID)
	if err := c.do(ctx, http.MethodGet, path, nil, &product); err != nil {
		return nil, err
	}

	return &product, nil
}

// ExpandLineItems returns the session's line items enriched with product name
// and first image. A line item whose product cannot be resolved is kept with
// empty name and image; a failed line-item listing is a hard error.
func (c *Client) ExpandLineItems(ctx context.Context, sessionID string) ([]ExpandedLineItem, error) {
	items, err := c.ListLineItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to list line items for session %s: %w", sessionID, err)
	}

	expanded := make([]ExpandedLineItem, 0, len(items))
	for _, item := range items {
		out := ExpandedLineItem{
			Quantity:    item.Quantity,
			AmountTotal: item.AmountTotal,
		}
		if item.Price.Product != "" {
			product, err := c.GetProduct(ctx, item.Price.Product)
			if err != nil {
				log.Warn().Err(err).
					Str("session_id", sessionID).
					Str("product_id", item.Price.Product).
					Msg("stripe: failed to resolve product for line item, keeping item without detail")
			} else {
				out.Name = product.Name
				if len(product.Images) > 0 {
					out.Image = product.Images[0]
				}
			}
		}
		expanded = append(expanded, out)
	}

	return expanded, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, v any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("stripe: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stripe: %w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("stripe: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("stripe: failed to decode response: %w", err)
	}

	return nil
}
