package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidStatusTransition = errors.New("invalid order status transition")

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStatusTransition
}

// Notifier delivers a message to a single recipient.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Service interface {
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, rawStatus string) (*Order, error)
}

type service struct {
	orderRepo Repository
	notifier  Notifier
}

func NewService(orderRepo Repository, notifier Notifier) Service {
	return &service{
		orderRepo: orderRepo,
		notifier:  notifier,
	}
}

func (s *service) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("user_id", userID).Msg("service: order not found for user")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders in repository")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves the order along the transition table and e-mails the owner once per
// change. Setting the current status again is a no-op.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, rawStatus string) (*Order, error) {
	newStatus, err := ParseStatus(rawStatus)
	if err != nil {
		log.Warn().Stringer("order_id", orderID).Str("status", rawStatus).Msg("service: unknown order status requested")
		return nil, err
	}

	current, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return nil, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if current.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return current, nil
	}

	if !current.Status.CanTransitionTo(newStatus) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return nil, &TransitionError{From: current.Status, To: newStatus}
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	oldStatus := current.Status
	current.Status = newStatus
	log.Info().Stringer("order_id", orderID).Stringer("old_status", oldStatus).Stringer("new_status", newStatus).Msg("service: order status updated successfully")

	s.notifyOwner(ctx, current)

	return current, nil
}

func (s *service) notifyOwner(ctx context.Context, o *Order) {
	if s.notifier == nil {
		return
	}
	if o.UserEmail == "" {
		log.Warn().Stringer("order_id", o.ID).Msg("service: order owner has no e-mail, skipping notification")
		return
	}

	subject, body := StatusMessage(o)
	if err := s.notifier.Send(ctx, o.UserEmail, subject, body); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Str("to", o.UserEmail).Msg("service: failed to send order status notification")
		return
	}
	log.Info().Stringer("order_id", o.ID).Msg("service: order status notification sent")
}

func StatusMessage(o *Order) (subject, body string) {
	subject = fmt.Sprintf("Order #%s Status Update", o.ID)
	body = fmt.Sprintf("Your order #%s status has been updated to: %s", o.ID, o.Status)
	return subject, body
}
