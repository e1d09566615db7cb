package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/mekongcart/checkout-service/internal/checkout"
	"github.com/mekongcart/checkout-service/internal/order"
	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/mekongcart/checkout-service/internal/payment/vnpay"
	"github.com/rs/zerolog/log"
)

type CheckoutItemRequest struct {
	Name     string `json:"name" validate:"required"`
	Image    string `json:"image"`
	Price    int64  `json:"price" validate:"required,gt=0"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
}

type ContactInfoRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type ShippingAddressRequest struct {
	City       string `json:"city" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
}

type CreateCardCheckoutRequest struct {
	UserID   string                `json:"user_id" validate:"required,uuid4"`
	Currency string                `json:"currency" validate:"omitempty,iso4217"`
	Items    []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CreateBankTransferCheckoutRequest struct {
	UserID          string                 `json:"user_id" validate:"required,uuid4"`
	Items           []CheckoutItemRequest  `json:"items" validate:"required,min=1,dive"`
	Tax             int64                  `json:"tax" validate:"gte=0"`
	ShippingFee     int64                  `json:"shipping_fee" validate:"gte=0"`
	CustomerInfo    ContactInfoRequest     `json:"customer_info" validate:"required"`
	ReceiverInfo    ContactInfoRequest     `json:"receiver_info" validate:"required"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" validate:"required"`
	Description     string                 `json:"description"`
	BankCode        string                 `json:"bank_code"`
	Locale          string                 `json:"locale"`
}

type CheckoutHandler struct {
	svc      checkout.Service
	validate *validator.Validate
}

func NewCheckoutHandler(svc checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Post("/checkout/stripe", h.handleCreateCardCheckout)
	router.Post("/checkout/vnpay", h.handleCreateBankTransferCheckout)
	router.Get("/checkout/vnpay/return", h.handleVNPayReturn)
	router.Get("/checkout/vnpay/ipn", h.handleVNPayIPN)
}

// HandleStripeWebhook receives the provider's event envelope. The body must
// stay in its raw byte form until the signature is verified, so this route is
// registered outside the JSON API group.
func (h *CheckoutHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	err = h.svc.HandleCardWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			log.Warn().Err(err).Msg("Rejected webhook with invalid signature")
			respondWithError(w, http.StatusBadRequest, "Invalid webhook signature")
			return
		}

		log.Error().Err(err).Msg("Failed to process webhook event")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to process webhook event")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *CheckoutHandler) handleCreateCardCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCardCheckoutRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	userID, _ := uuid.FromString(req.UserID)

	items := make([]checkout.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.Item{
			Name:     item.Name,
			Image:    item.Image,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	result, err := h.svc.CreateCardCheckout(r.Context(), userID, checkout.CardCheckoutRequest{
		Items:    items,
		Currency: req.Currency,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create card checkout session")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create checkout session")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *CheckoutHandler) handleCreateBankTransferCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateBankTransferCheckoutRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	userID, _ := uuid.FromString(req.UserID)

	items := make([]checkout.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkout.Item{
			Name:     item.Name,
			Image:    item.Image,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	result, err := h.svc.CreateBankTransferCheckout(r.Context(), userID, checkout.BankTransferCheckoutRequest{
		Items:       items,
		Tax:         req.Tax,
		ShippingFee: req.ShippingFee,
		CustomerInfo: order.ContactInfo{
			Name:  req.CustomerInfo.Name,
			Email: req.CustomerInfo.Email,
			Phone: req.CustomerInfo.Phone,
		},
		ReceiverInfo: order.ContactInfo{
			Name:  req.ReceiverInfo.Name,
			Email: req.ReceiverInfo.Email,
			Phone: req.ReceiverInfo.Phone,
		},
		ShippingAddress: order.ShippingAddress{
			City:       req.ShippingAddress.City,
			Country:    req.ShippingAddress.Country,
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			PostalCode: req.ShippingAddress.PostalCode,
			State:      req.ShippingAddress.State,
		},
		Description: req.Description,
		BankCode:    req.BankCode,
		Locale:      req.Locale,
	}, clientIP(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create bank transfer checkout")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create checkout")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *CheckoutHandler) handleVNPayReturn(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.HandleBankTransferReturn(r.Context(), queryParams(r))
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidSignature) {
			respondWithJSON(w, http.StatusBadRequest, map[string]string{"code": vnpay.CodeChecksumFailed})
			return
		}

		log.Error().Err(err).Msg("Failed to process payment return")
		respondWithError(w, http.StatusInternalServerError, "Failed to process payment return")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// handleVNPayIPN answers HTTP 200 for every business outcome; the payload
// code carries the result. Only an infrastructure failure yields a 5xx so the
// provider redelivers the notification.
func (h *CheckoutHandler) handleVNPayIPN(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.HandleBankTransferIPN(r.Context(), queryParams(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to process payment notification")
		respondWithError(w, http.StatusInternalServerError, "Failed to process payment notification")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *CheckoutHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}

	return true
}

func queryParams(r *http.Request) map[string]string {
	values := r.URL.Query()
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return params
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
