package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

var ErrNotEligible = errors.New("only customers with a delivered order of this product can review it")

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid review: " + strings.Join(parts, "; ")
}

// DeliveryChecker answers whether a user has received a product.
type DeliveryChecker interface {
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type submission struct {
	Rating  int    `validate:"min=1,max=5"`
	Comment string `validate:"max=2000"`
}

// ProductPage is the product detail view model.
type ProductPage struct {
	Product    *catalog.Product `json:"product"`
	Reviews    []Review         `json:"reviews"`
	AvgRating  string           `json:"avg_rating"`
	UserReview *Review          `json:"user_review,omitempty"`
	CanReview  bool             `json:"can_review"`
}

type Service interface {
	Submit(ctx context.Context, userID uuid.UUID, productSlug string, rating int, comment string) (*Review, error)
	ProductPage(ctx context.Context, productSlug string, viewer uuid.UUID) (*ProductPage, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Review, error)
}

type service struct {
	repo       Repository
	catalog    catalog.Service
	deliveries DeliveryChecker
	validate   *validator.Validate
}

func NewService(repo Repository, catalogSvc catalog.Service, deliveries DeliveryChecker) Service {
	return &service{
		repo:       repo,
		catalog:    catalogSvc,
		deliveries: deliveries,
		validate:   validator.New(),
	}
}

func (s *service) Submit(ctx context.Context, userID uuid.UUID, productSlug string, rating int, comment string) (*Review, error) {
	comment = strings.TrimSpace(comment)
	if err := s.validate.Struct(submission{Rating: rating, Comment: comment}); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, fe := range validationErrors {
				switch fe.Field() {
				case "Rating":
					fields["rating"] = "Rating must be between 1 and 5."
				case "Comment":
					fields["comment"] = "Comment is too long."
				}
			}
			return nil, &ValidationError{Fields: fields}
		}
		return nil, fmt.Errorf("service: unexpected review validation failure: %w", err)
	}

	product, err := s.catalog.GetProductBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	eligible, err := s.deliveries.HasDeliveredProduct(ctx, userID, product.ID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to check review eligibility")
		return nil, fmt.Errorf("service: failed to check review eligibility: %w", err)
	}
	if !eligible {
		log.Warn().Stringer("user_id", userID).Stringer("product_id", product.ID).Msg("service: review rejected, no delivered order")
		return nil, ErrNotEligible
	}

	r := &Review{
		ProductID:   product.ID,
		ProductName: product.Name,
		ProductSlug: product.Slug,
		UserID:      userID,
		Rating:      rating,
		Comment:     comment,
	}
	if err := s.repo.Upsert(ctx, r); err != nil {
		log.Error().Err(err).Stringer("product_id", product.ID).Msg("service: failed to save review")
		return nil, fmt.Errorf("service: failed to save review: %w", err)
	}

	s.catalog.InvalidateProduct(ctx, product.ID)
	log.Info().Stringer("product_id", product.ID).Stringer("user_id", userID).Int("rating", rating).Msg("service: review saved")
	return r, nil
}

// ProductPage loads the product, its reviews and whether viewer may review it. A viewer who
// already reviewed the product gets UserReview and no review form. viewer is uuid.Nil for
// anonymous visitors.
func (s *service) ProductPage(ctx context.Context, productSlug string, viewer uuid.UUID) (*ProductPage, error) {
	product, err := s.catalog.GetProductBySlug(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	reviews, err := s.repo.ListForProduct(ctx, product.ID)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", product.ID).Msg("service: failed to list reviews")
		return nil, fmt.Errorf("service: failed to list reviews: %w", err)
	}

	page := &ProductPage{
		Product:   product,
		Reviews:   reviews,
		AvgRating: product.Rating.StringFixed(1),
	}

	if viewer == uuid.Nil {
		return page, nil
	}

	for i := range reviews {
		if reviews[i].UserID == viewer {
			page.UserReview = &reviews[i]
			break
		}
	}
	if page.UserReview != nil {
		return page, nil
	}

	page.CanReview, err = s.deliveries.HasDeliveredProduct(ctx, viewer, product.ID)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", viewer).Msg("service: review eligibility unknown, hiding review form")
		page.CanReview = false
	}

	return page, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Review, error) {
	reviews, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to list user reviews")
		return nil, fmt.Errorf("service: failed to list user reviews: %w", err)
	}
	return reviews, nil
}
