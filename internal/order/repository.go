package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateSession means an order for the same provider checkout
	// session already exists. Not a failure: webhook deliveries are retried.
	ErrDuplicateSession = errors.New("order for checkout session already exists")
	// ErrAlreadySettled means the order was already marked paid and the
	// payment event must not be applied again.
	ErrAlreadySettled = errors.New("order already settled")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*Order, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, entry StatusLog) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, entry StatusLog) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, canceledBy string, entry StatusLog) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, user_id, checkout_session_id, items, total_price, tax, shipping_fee,
	customer_info, receiver_info, shipping_address, payment_method, is_paid,
	order_status, canceled_by, description, status_logs, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order id: %w", err)
		}
		o.ID = id
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Items == nil {
		o.Items = []Item{}
	}
	if o.StatusLogs == nil {
		o.StatusLogs = []StatusLog{}
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.Exec(ctx, query,
		o.ID,
		o.UserID,
		o.CheckoutSessionID,
		o.Items,
		o.TotalPrice,
		o.Tax,
		o.ShippingFee,
		o.CustomerInfo,
		o.ReceiverInfo,
		o.ShippingAddress,
		string(o.PaymentMethod),
		o.IsPaid,
		string(o.Status),
		o.CanceledBy,
		o.Description,
		o.StatusLogs,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			log.Info().Str("checkout_session_id", o.CheckoutSessionID).Msg("repository: duplicate checkout session, order already exists")
			return ErrDuplicateSession
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *postgresRepository) GetBySessionID(ctx context.Context, sessionID string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_session_id = $1`
	return r.getOne(ctx, query, sessionID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, arg any) (*Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&o.ID,
		&o.UserID,
		&o.CheckoutSessionID,
		&o.Items,
		&o.TotalPrice,
		&o.Tax,
		&o.ShippingFee,
		&o.CustomerInfo,
		&o.ReceiverInfo,
		&o.ShippingAddress,
		&o.PaymentMethod,
		&o.IsPaid,
		&o.Status,
		&o.CanceledBy,
		&o.Description,
		&o.StatusLogs,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order: %w", err)
	}

	return &o, nil
}

func (r *postgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.CheckoutSessionID,
			&o.Items,
			&o.TotalPrice,
			&o.Tax,
			&o.ShippingFee,
			&o.CustomerInfo,
			&o.ReceiverInfo,
			&o.ShippingAddress,
			&o.PaymentMethod,
			&o.IsPaid,
			&o.Status,
			&o.CanceledBy,
			&o.Description,
			&o.StatusLogs,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	return orders, nil
}

// ConfirmPayment marks the order paid and confirmed in one conditional UPDATE.
// The is_paid guard makes concurrent deliveries of the same payment
// notification apply at most once: the loser sees zero rows and gets
// ErrAlreadySettled.
func (r *postgresRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, entry StatusLog) error {
	query := `
		UPDATE orders
		SET is_paid = TRUE,
		    order_status = $2,
		    status_logs = status_logs || $3::jsonb,
		    updated_at = $4
		WHERE id = $1 AND is_paid = FALSE
	`
	entry.Status = StatusConfirmed

	cmdTag, err := r.db.Exec(ctx, query, id, string(StatusConfirmed), entry, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("repository: failed to confirm payment")
		return fmt.Errorf("repository: failed to confirm payment for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.classifyUnmatchedUpdate(ctx, id)
	}

	return nil
}

// MarkPaymentFailed records a declined payment. The paid flag stays false; a
// settled order is never demoted.
func (r *postgresRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID, entry StatusLog) error {
	query := `
		UPDATE orders
		SET order_status = $2,
		    status_logs = status_logs || $3::jsonb,
		    updated_at = $4
		WHERE id = $1 AND is_paid = FALSE
	`
	entry.Status = StatusFailed

	cmdTag, err := r.db.Exec(ctx, query, id, string(StatusFailed), entry, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("repository: failed to mark payment failed")
		return fmt.Errorf("repository: failed to mark payment failed for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.classifyUnmatchedUpdate(ctx, id)
	}

	return nil
}

// classifyUnmatchedUpdate tells a missing order apart from one that lost the
// is_paid guard.
func (r *postgresRepository) classifyUnmatchedUpdate(ctx context.Context, id uuid.UUID) error {
	var isPaid bool
	err := r.db.QueryRow(ctx, `SELECT is_paid FROM orders WHERE id = $1`, id).Scan(&isPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("repository: failed to re-check order %s: %w", id, err)
	}

	return ErrAlreadySettled
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, canceledBy string, entry StatusLog) error {
	query := `
		UPDATE orders
		SET order_status = $2,
		    canceled_by = $3,
		    status_logs = status_logs || $4::jsonb,
		    updated_at = $5
		WHERE id = $1
	`
	cmdTag, err := r.db.Exec(ctx, query, id, string(status), canceledBy, entry, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Str("new_status", string(status)).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update status for order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}
