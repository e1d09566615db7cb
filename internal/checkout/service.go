package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofrs/uuid"
	"github.com/mekongcart/checkout-service/internal/order"
	"github.com/mekongcart/checkout-service/internal/payment/stripe"
	"github.com/mekongcart/checkout-service/internal/payment/vnpay"
	"github.com/mekongcart/checkout-service/internal/user"
	"github.com/rs/zerolog/log"
)

// ErrInvalidSignature rejects a bank-transfer return whose checksum does not
// match. The card path surfaces stripe.ErrInvalidSignature instead; the HTTP
// layer maps both to a 4xx.
var ErrInvalidSignature = errors.New("callback signature mismatch")

const (
	actorStripe   = "stripe"
	actorVNPay    = "vnpay"
	actorCustomer = "customer"
)

// CardGateway is the card provider surface the reconciler needs: opening
// checkout sessions and expanding a session reference into line-item detail.
type CardGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpandLineItems(ctx context.Context, sessionID string) ([]stripe.ExpandedLineItem, error)
}

// EventVerifier authenticates a raw webhook payload and parses it.
type EventVerifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// BankGateway is the bank-transfer provider surface: building signed payment
// URLs and verifying callback checksums.
type BankGateway interface {
	CreatePaymentURL(req vnpay.PaymentURLRequest) string
	VerifyCallback(params map[string]string) bool
}

type Item struct {
	Name     string
	Image    string
	Price    int64
	Quantity int64
}

type CardCheckoutRequest struct {
	Items    []Item
	Currency string
}

type CardCheckoutResult struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

type BankTransferCheckoutRequest struct {
	Items           []Item
	Tax             int64
	ShippingFee     int64
	CustomerInfo    order.ContactInfo
	ReceiverInfo    order.ContactInfo
	ShippingAddress order.ShippingAddress
	Description     string
	BankCode        string
	Locale          string
}

type BankTransferCheckoutResult struct {
	Order      *order.Order `json:"order"`
	PaymentURL string       `json:"payment_url"`
}

type ReturnResult struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Data    *order.Order `json:"data,omitempty"`
}

type IPNResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Service interface {
	CreateCardCheckout(ctx context.Context, userID uuid.UUID, req CardCheckoutRequest) (*CardCheckoutResult, error)
	CreateBankTransferCheckout(ctx context.Context, userID uuid.UUID, req BankTransferCheckoutRequest, clientIP string) (*BankTransferCheckoutResult, error)
	HandleCardWebhook(ctx context.Context, payload []byte, sigHeader string) error
	HandleBankTransferReturn(ctx context.Context, params map[string]string) (*ReturnResult, error)
	HandleBankTransferIPN(ctx context.Context, params map[string]string) (IPNResult, error)
}

type service struct {
	orders order.Repository
	users  user.Repository
	cards  CardGateway
	events EventVerifier
	bank   BankGateway
}

func NewService(orders order.Repository, users user.Repository, cards CardGateway, events EventVerifier, bank BankGateway) Service {
	return &service{
		orders: orders,
		users:  users,
		cards:  cards,
		events: events,
		bank:   bank,
	}
}

func (s *service) CreateCardCheckout(ctx context.Context, userID uuid.UUID, req CardCheckoutRequest) (*CardCheckoutResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	lineItems := make([]stripe.LineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, stripe.LineItemParams{
			Name:       item.Name,
			Image:      item.Image,
			UnitAmount: item.Price,
			Currency:   currency,
			Quantity:   item.Quantity,
		})
	}

	session, err := s.cards.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		UserID:    userID.String(),
		LineItems: lineItems,
	})
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("checkout: failed to create card checkout session")
		return nil, fmt.Errorf("checkout: failed to create card checkout session: %w", err)
	}

	log.Info().Str("session_id", session.ID).Stringer("user_id", userID).Msg("checkout: card checkout session created")
	return &CardCheckoutResult{SessionID: session.ID, SessionURL: session.URL}, nil
}

func (s *service) CreateBankTransferCheckout(ctx context.Context, userID uuid.UUID, req BankTransferCheckoutRequest, clientIP string) (*BankTransferCheckoutResult, error) {
	items := make([]order.Item, 0, len(req.Items))
	var itemsTotal int64
	for _, item := range req.Items {
		items = append(items, order.Item{
			Name:     item.Name,
			Image:    item.Image,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
		itemsTotal += item.Price * item.Quantity
	}
	total := itemsTotal + req.Tax + req.ShippingFee

	ord := &order.Order{
		UserID:          userID,
		Items:           items,
		TotalPrice:      total,
		Tax:             req.Tax,
		ShippingFee:     req.ShippingFee,
		CustomerInfo:    req.CustomerInfo,
		ReceiverInfo:    req.ReceiverInfo,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   order.PaymentMethodBankTransfer,
		Status:          order.StatusPending,
		Description:     req.Description,
		StatusLogs: []order.StatusLog{
			order.NewStatusLog(actorCustomer, order.StatusPending, "order created, awaiting bank transfer"),
		},
	}

	if err := s.orders.Create(ctx, ord); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("checkout: failed to create pending order")
		return nil, fmt.Errorf("checkout: failed to create pending order: %w", err)
	}

	payURL := s.bank.CreatePaymentURL(vnpay.PaymentURLRequest{
		OrderID:   ord.ID.String(),
		Amount:    total,
		OrderInfo: "Payment for order " + ord.ID.String(),
		IPAddr:    clientIP,
		Locale:    req.Locale,
		BankCode:  req.BankCode,
	})

	log.Info().Stringer("order_id", ord.ID).Int64("total", total).Msg("checkout: pending bank-transfer order created")
	return &BankTransferCheckoutResult{Order: ord, PaymentURL: payURL}, nil
}

// HandleCardWebhook authenticates the raw payload, then applies the event.
// Unknown event types are acknowledged without action so new provider events
// never bounce.
func (s *service) HandleCardWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.events.ConstructEvent(payload, sigHeader)
	if err != nil {
		return err
	}

	switch event.Type {
	case stripe.EventCheckoutSessionCompleted:
		return s.reconcileSessionCompleted(ctx, event.Session())
	case stripe.EventAsyncPaymentSucceeded:
		return s.settleSession(ctx, event.Session().ID)
	case stripe.EventAsyncPaymentFailed:
		return s.failSession(ctx, event.Session().ID)
	default:
		log.Info().Str("event_type", string(event.Type)).Msg("checkout: unhandled webhook event type")
		return nil
	}
}

// reconcileSessionCompleted builds and persists the local order for a
// completed checkout session. The session reference is the idempotency key:
// redelivery of the same event finds the unique index and becomes a no-op.
func (s *service) reconcileSessionCompleted(ctx context.Context, sess stripe.CheckoutSession) error {
	expanded, err := s.cards.ExpandLineItems(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("checkout: failed to expand session %s: %w", sess.ID, err)
	}

	items := make([]order.Item, 0, len(expanded))
	for _, item := range expanded {
		unitPrice := item.AmountTotal
		if item.Quantity > 0 {
			unitPrice = item.AmountTotal / item.Quantity
		}
		items = append(items, order.Item{
			Name:     item.Name,
			Image:    item.Image,
			Price:    unitPrice,
			Quantity: item.Quantity,
		})
	}

	var customer order.ContactInfo
	userID, parseErr := uuid.FromString(sess.Metadata["userId"])
	if parseErr != nil {
		log.Warn().Str("session_id", sess.ID).Str("user_id", sess.Metadata["userId"]).Msg("checkout: session metadata has no usable user id")
	} else {
		profile, err := s.users.GetByID(ctx, userID)
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				return fmt.Errorf("checkout: failed to load user profile for session %s: %w", sess.ID, err)
			}
			log.Warn().Str("session_id", sess.ID).Stringer("user_id", userID).Msg("checkout: user profile not found, leaving customer info empty")
		} else {
			customer = order.ContactInfo{
				Name:  profile.Username,
				Email: profile.Email,
				Phone: profile.Phone,
			}
		}
	}

	isPaid := sess.PaymentStatus == stripe.PaymentStatusPaid
	status := order.StatusPending
	entry := order.NewStatusLog(actorStripe, status, "awaiting asynchronous payment")
	if isPaid {
		status = order.StatusConfirmed
		entry = order.NewStatusLog(actorStripe, status, "paid via card")
	}

	ord := &order.Order{
		UserID:            userID,
		CheckoutSessionID: sess.ID,
		Items:             items,
		// The provider's session total is authoritative for financial fields.
		TotalPrice:   sess.AmountTotal,
		CustomerInfo: customer,
		ReceiverInfo: order.ContactInfo{
			Name:  sess.CustomerDetails.Name,
			Email: sess.CustomerDetails.Email,
			Phone: sess.CustomerDetails.Phone,
		},
		ShippingAddress: order.ShippingAddress{
			City:       sess.CustomerDetails.Address.City,
			Country:    sess.CustomerDetails.Address.Country,
			Line1:      sess.CustomerDetails.Address.Line1,
			Line2:      sess.CustomerDetails.Address.Line2,
			PostalCode: sess.CustomerDetails.Address.PostalCode,
			State:      sess.CustomerDetails.Address.State,
		},
		PaymentMethod: order.PaymentMethodCard,
		IsPaid:        isPaid,
		Status:        status,
		StatusLogs:    []order.StatusLog{entry},
	}

	if err := s.orders.Create(ctx, ord); err != nil {
		if errors.Is(err, order.ErrDuplicateSession) {
			log.Info().Str("session_id", sess.ID).Msg("checkout: session already reconciled, skipping duplicate delivery")
			return nil
		}
		return fmt.Errorf("checkout: failed to persist order for session %s: %w", sess.ID, err)
	}

	log.Info().Str("session_id", sess.ID).Stringer("order_id", ord.ID).Bool("is_paid", isPaid).Msg("checkout: order created from completed session")
	return nil
}

func (s *service) settleSession(ctx context.Context, sessionID string) error {
	ord, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn().Str("session_id", sessionID).Msg("checkout: async payment succeeded for unknown session")
			return nil
		}
		return fmt.Errorf("checkout: failed to look up session %s: %w", sessionID, err)
	}

	entry := order.NewStatusLog(actorStripe, order.StatusConfirmed, "async payment succeeded")
	err = s.orders.ConfirmPayment(ctx, ord.ID, entry)
	if err != nil {
		if errors.Is(err, order.ErrAlreadySettled) {
			log.Info().Str("session_id", sessionID).Msg("checkout: async payment already applied")
			return nil
		}
		return fmt.Errorf("checkout: failed to confirm async payment for session %s: %w", sessionID, err)
	}

	log.Info().Str("session_id", sessionID).Stringer("order_id", ord.ID).Msg("checkout: async payment confirmed")
	return nil
}

func (s *service) failSession(ctx context.Context, sessionID string) error {
	ord, err := s.orders.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn().Str("session_id", sessionID).Msg("checkout: async payment failed for unknown session")
			return nil
		}
		return fmt.Errorf("checkout: failed to look up session %s: %w", sessionID, err)
	}

	entry := order.NewStatusLog(actorStripe, order.StatusFailed, "async payment failed")
	err = s.orders.MarkPaymentFailed(ctx, ord.ID, entry)
	if err != nil {
		if errors.Is(err, order.ErrAlreadySettled) {
			log.Warn().Str("session_id", sessionID).Msg("checkout: async payment failure for settled order, ignoring")
			return nil
		}
		return fmt.Errorf("checkout: failed to record async payment failure for session %s: %w", sessionID, err)
	}

	log.Info().Str("session_id", sessionID).Stringer("order_id", ord.ID).Msg("checkout: async payment failure recorded")
	return nil
}

// HandleBankTransferReturn serves the user-facing redirect. It shares the
// signature routine with the IPN path but never settles: the IPN is the
// source of truth.
func (s *service) HandleBankTransferReturn(ctx context.Context, params map[string]string) (*ReturnResult, error) {
	if !s.bank.VerifyCallback(params) {
		return nil, ErrInvalidSignature
	}

	ord, result, err := s.lookupAndCheckAmount(ctx, params)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return &ReturnResult{Code: result.Code, Message: result.Message}, nil
	}

	return &ReturnResult{
		Code:    params[vnpay.ParamResponseCode],
		Message: "Success",
		Data:    ord,
	}, nil
}

// HandleBankTransferIPN is the authoritative settlement path. The checks run
// in strict order and the first failure short-circuits; only the payload code
// carries the outcome, the transport answer is always 200. A non-nil error
// means infrastructure failure and must surface as a 5xx so the provider
// redelivers.
func (s *service) HandleBankTransferIPN(ctx context.Context, params map[string]string) (IPNResult, error) {
	if !s.bank.VerifyCallback(params) {
		return IPNResult{Code: vnpay.CodeChecksumFailed, Message: "Checksum failed"}, nil
	}

	ord, result, err := s.lookupAndCheckAmount(ctx, params)
	if err != nil {
		return IPNResult{}, err
	}
	if result != nil {
		return *result, nil
	}

	if ord.IsPaid {
		return IPNResult{Code: vnpay.CodeAlreadyUpdated, Message: "Order already updated"}, nil
	}

	rspCode := params[vnpay.ParamResponseCode]
	if rspCode == vnpay.CodeSuccess {
		entry := order.NewStatusLog(actorVNPay, order.StatusConfirmed, "paid via bank transfer")
		err := s.orders.ConfirmPayment(ctx, ord.ID, entry)
		if err != nil {
			if errors.Is(err, order.ErrAlreadySettled) {
				return IPNResult{Code: vnpay.CodeAlreadyUpdated, Message: "Order already updated"}, nil
			}
			return IPNResult{}, fmt.Errorf("checkout: failed to confirm bank transfer for order %s: %w", ord.ID, err)
		}

		log.Info().Stringer("order_id", ord.ID).Msg("checkout: bank transfer confirmed")
		return IPNResult{Code: vnpay.CodeSuccess, Message: "Success"}, nil
	}

	entry := order.NewStatusLog(actorVNPay, order.StatusFailed, "bank transfer declined with code "+rspCode)
	if err := s.orders.MarkPaymentFailed(ctx, ord.ID, entry); err != nil {
		if errors.Is(err, order.ErrAlreadySettled) {
			return IPNResult{Code: vnpay.CodeAlreadyUpdated, Message: "Order already updated"}, nil
		}
		return IPNResult{}, fmt.Errorf("checkout: failed to record declined bank transfer for order %s: %w", ord.ID, err)
	}

	log.Info().Stringer("order_id", ord.ID).Str("response_code", rspCode).Msg("checkout: bank transfer declined")
	return IPNResult{Code: rspCode, Message: "Fail"}, nil
}

// lookupAndCheckAmount resolves vnp_TxnRef to an order and validates the
// declared amount. A non-nil IPNResult is the short-circuit response; a
// non-nil error is an infrastructure failure.
func (s *service) lookupAndCheckAmount(ctx context.Context, params map[string]string) (*order.Order, *IPNResult, error) {
	orderID, err := uuid.FromString(params[vnpay.ParamTxnRef])
	if err != nil {
		return nil, &IPNResult{Code: vnpay.CodeOrderNotFound, Message: "Order not found"}, nil
	}

	ord, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, &IPNResult{Code: vnpay.CodeOrderNotFound, Message: "Order not found"}, nil
		}
		return nil, nil, fmt.Errorf("checkout: failed to look up order %s: %w", orderID, err)
	}

	amount, err := strconv.ParseInt(params[vnpay.ParamAmount], 10, 64)
	// The gateway reports the amount multiplied by 100.
	if err != nil || amount != ord.TotalPrice*100 {
		return nil, &IPNResult{Code: vnpay.CodeInvalidAmount, Message: "Amount invalid"}, nil
	}

	return ord, nil, nil
}
