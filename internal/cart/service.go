package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type Service interface {
	AddOrIncrement(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Item, error)
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	RemoveMany(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (int64, error)
	Adjust(ctx context.Context, userID, itemID uuid.UUID, direction Direction) (int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) (*Cart, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) AddOrIncrement(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Item, error) {
	if quantity < 1 {
		quantity = 1
	}

	item, err := s.repo.AddOrIncrement(ctx, userID, productID, quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			log.Warn().Stringer("user_id", userID).Stringer("product_id", productID).Msg("service: add to cart for unknown product")
			return nil, catalog.ErrProductNotFound
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to add item to cart")
		return nil, fmt.Errorf("service: failed to add item to cart: %w", err)
	}

	log.Debug().Stringer("user_id", userID).Stringer("product_id", productID).Int("quantity", item.Quantity).Msg("service: cart item saved")
	return item, nil
}

func (s *service) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	err := s.repo.Delete(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			log.Warn().Stringer("user_id", userID).Stringer("item_id", itemID).Msg("service: cart item not found for removal")
			return ErrItemNotFound
		}
		log.Error().Err(err).Stringer("item_id", itemID).Msg("service: failed to remove cart item")
		return fmt.Errorf("service: failed to remove cart item: %w", err)
	}
	return nil
}

func (s *service) RemoveMany(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	removed, err := s.repo.DeleteMany(ctx, userID, itemIDs)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to bulk remove cart items")
		return 0, fmt.Errorf("service: failed to bulk remove cart items: %w", err)
	}
	return removed, nil
}

// Adjust moves the quantity one step. Decreasing never goes below 1 and never deletes the item.
func (s *service) Adjust(ctx context.Context, userID, itemID uuid.UUID, direction Direction) (int, error) {
	if direction != DirectionIncrease && direction != DirectionDecrease {
		return 0, ErrInvalidDirection
	}

	quantity, err := s.repo.AdjustQuantity(ctx, userID, itemID, direction.delta())
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			log.Warn().Stringer("user_id", userID).Stringer("item_id", itemID).Msg("service: cart item not found for adjust")
			return 0, ErrItemNotFound
		}
		log.Error().Err(err).Stringer("item_id", itemID).Msg("service: failed to adjust cart item")
		return 0, fmt.Errorf("service: failed to adjust cart item: %w", err)
	}
	return quantity, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	items, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to list cart")
		return nil, fmt.Errorf("service: failed to list cart: %w", err)
	}
	return NewCart(items), nil
}
