package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipping  Status = "shipping"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

type Item struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"` // unit price in minor units
	Image    string `json:"image"`
}

type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ShippingAddress struct {
	City       string `json:"city"`
	Country    string `json:"country"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
}

// StatusLog is one entry of the append-only status history. Entries are never
// rewritten, only appended.
type StatusLog struct {
	ChangedBy string    `json:"changed_by"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	ChangedAt time.Time `json:"changed_at"`
}

type Order struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	UserID            uuid.UUID       `json:"user_id" db:"user_id"`
	CheckoutSessionID string          `json:"checkout_session_id,omitempty" db:"checkout_session_id"`
	Items             []Item          `json:"items" db:"items"`
	TotalPrice        int64           `json:"total_price" db:"total_price"`
	Tax               int64           `json:"tax" db:"tax"`
	ShippingFee       int64           `json:"shipping_fee" db:"shipping_fee"`
	CustomerInfo      ContactInfo     `json:"customer_info" db:"customer_info"`
	ReceiverInfo      ContactInfo     `json:"receiver_info" db:"receiver_info"`
	ShippingAddress   ShippingAddress `json:"shipping_address" db:"shipping_address"`
	PaymentMethod     PaymentMethod   `json:"payment_method" db:"payment_method"`
	IsPaid            bool            `json:"is_paid" db:"is_paid"`
	Status            Status          `json:"order_status" db:"order_status"`
	CanceledBy        string          `json:"canceled_by,omitempty" db:"canceled_by"`
	Description       string          `json:"description,omitempty" db:"description"`
	StatusLogs        []StatusLog     `json:"status_logs" db:"status_logs"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// NewStatusLog stamps a history entry with the current time.
func NewStatusLog(changedBy string, status Status, reason string) StatusLog {
	return StatusLog{
		ChangedBy: changedBy,
		Status:    status,
		Reason:    reason,
		ChangedAt: time.Now().UTC(),
	}
}
