package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// allowedTransitions encodes the administrative status state machine. A paid
// but declined or confirmed order may still be canceled; delivered and
// canceled are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCanceled:  true,
		StatusFailed:    true,
	},
	StatusConfirmed: {
		StatusShipping: true,
		StatusCanceled: true,
	},
	StatusShipping: {
		StatusDelivered: true,
		StatusCanceled:  true,
	},
	StatusFailed: {
		StatusCanceled: true,
	},
	StatusDelivered: {},
	StatusCanceled:  {},
}

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type Service interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, actor, reason string) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) CancelOrder(ctx context.Context, id uuid.UUID, actor, reason string) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found, cannot cancel")
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to get order for cancel: %w", err)
	}

	if current.Status == StatusCanceled {
		log.Info().Stringer("order_id", id).Msg("service: order already canceled, no update needed")
		return nil
	}

	if !allowedTransitions[current.Status][StatusCanceled] {
		log.Warn().
			Stringer("order_id", id).
			Stringer("current_status", current.Status).
			Msg("service: cancel not allowed from current status")
		return fmt.Errorf("service: %w: %s -> %s", ErrInvalidStatusTransition, current.Status, StatusCanceled)
	}

	entry := NewStatusLog(actor, StatusCanceled, reason)
	if err := s.repo.UpdateStatus(ctx, id, StatusCanceled, actor, entry); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to cancel order")
		return fmt.Errorf("service: failed to cancel order: %w", err)
	}

	log.Info().Stringer("order_id", id).Str("actor", actor).Msg("service: order canceled")
	return nil
}
