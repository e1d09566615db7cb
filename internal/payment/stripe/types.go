package stripe

// EventType enumerates the webhook event types this service reacts to. Any
// other type is acknowledged and ignored.
type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventAsyncPaymentSucceeded    EventType = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed       EventType = "checkout.session.async_payment_failed"
)

const PaymentStatusPaid = "paid"

type Address struct {
	City       string `json:"city"`
	Country    string `json:"country"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
}

type CustomerDetails struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

// CheckoutSession is the provider-side record of one checkout attempt. Its ID
// is the opaque session reference used as the local idempotency key.
type CheckoutSession struct {
	ID                 string            `json:"id"`
	URL                string            `json:"url"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	PaymentStatus      string            `json:"payment_status"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
	CustomerDetails    CustomerDetails   `json:"customer_details"`
}

type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

// Session returns the checkout session carried by the event.
func (e Event) Session() CheckoutSession {
	return e.Data.Object
}

type Price struct {
	UnitAmount int64  `json:"unit_amount"`
	Product    string `json:"product"`
}

type LineItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	AmountTotal int64  `json:"amount_total"`
	Price       Price  `json:"price"`
}

type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

// ExpandedLineItem is a line item enriched with product detail. Name and Image
// stay empty when the product could not be resolved; quantity and amount are
// always present.
type ExpandedLineItem struct {
	Name        string
	Image       string
	Quantity    int64
	AmountTotal int64
}
