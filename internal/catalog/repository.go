package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

type sqlxRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &sqlxRepository{db: db}
}

const productSelect = `
	SELECT p.id, p.category_id, c.name AS category_name, p.name, p.slug, p.description,
	       p.price, p.stock, p.image,
	       COALESCE(ROUND(AVG(r.rating), 1), 0) AS rating,
	       p.created_at, p.updated_at
	FROM products p
	JOIN categories c ON c.id = p.category_id
	LEFT JOIN reviews r ON r.product_id = p.id
`

const productGroupBy = ` GROUP BY p.id, c.name`

func (r *sqlxRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	var p Product
	err := r.db.GetContext(ctx, &p, productSelect+` WHERE p.id = $1`+productGroupBy, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}
	return &p, nil
}

func (r *sqlxRepository) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	var p Product
	err := r.db.GetContext(ctx, &p, productSelect+` WHERE p.slug = $1`+productGroupBy, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by slug %q: %w", slug, err)
	}
	return &p, nil
}

func (r *sqlxRepository) List(ctx context.Context) ([]Product, error) {
	products := make([]Product, 0)
	err := r.db.SelectContext(ctx, &products, productSelect+productGroupBy+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}
	return products, nil
}

func (r *sqlxRepository) ListCategories(ctx context.Context) ([]Category, error) {
	categories := make([]Category, 0)
	err := r.db.SelectContext(ctx, &categories, `SELECT id, name, slug, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list categories: %w", err)
	}
	return categories, nil
}
