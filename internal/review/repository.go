package review

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

type Review struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	ProductSlug string    `json:"product_slug,omitempty"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}

type Repository interface {
	Upsert(ctx context.Context, r *Review) error
	ListForProduct(ctx context.Context, productID uuid.UUID) ([]Review, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Review, error)
}

type postgresRepository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) Repository {
	return &postgresRepository{db: conn}
}

// Upsert keeps a single review per user and product; a second submission replaces the first.
func (p *postgresRepository) Upsert(ctx context.Context, r *Review) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate review ID: %w", err)
	}

	query := `
		INSERT INTO reviews (id, product_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (product_id, user_id)
		DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, created_at = NOW()
		RETURNING id, created_at
	`
	err = p.db.QueryRow(ctx, query, id, r.ProductID, r.UserID, r.Rating, r.Comment).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to save review for product %s: %w", r.ProductID, err)
	}
	return nil
}

func (p *postgresRepository) ListForProduct(ctx context.Context, productID uuid.UUID) ([]Review, error) {
	query := `
		SELECT r.id, r.product_id, r.user_id, u.username, r.rating, r.comment, r.created_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = $1
		ORDER BY r.created_at DESC
	`
	rows, err := p.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query reviews for product %s: %w", productID, err)
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.UserID, &r.Username, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating reviews for product %s: %w", productID, err)
	}
	return reviews, nil
}

func (p *postgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Review, error) {
	query := `
		SELECT r.id, r.product_id, pr.name, pr.slug, r.user_id, r.rating, r.comment, r.created_at
		FROM reviews r
		JOIN products pr ON pr.id = r.product_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
	`
	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query reviews for user %s: %w", userID, err)
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductName, &r.ProductSlug, &r.UserID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating reviews for user %s: %w", userID, err)
	}
	return reviews, nil
}
