package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var ErrItemNotFound = errors.New("cart item not found")

type Repository interface {
	AddOrIncrement(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Item, error)
	Delete(ctx context.Context, userID, itemID uuid.UUID) error
	DeleteMany(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (int64, error)
	AdjustQuantity(ctx context.Context, userID, itemID uuid.UUID, delta int) (int, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Item, error)
	ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type postgresRepository struct {
	db db.DBTX
}

// NewRepository works with a pool or with a pgx.Tx owned by the caller.
func NewRepository(conn db.DBTX) Repository {
	return &postgresRepository{db: conn}
}

func (r *postgresRepository) AddOrIncrement(ctx context.Context, userID, productID uuid.UUID, quantity int) (*Item, error) {
	if quantity < 1 {
		quantity = 1
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart item ID: %w", err)
	}

	query := `
		INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING id, user_id, product_id, quantity, created_at, updated_at
	`

	var item Item
	err = r.db.QueryRow(ctx, query, id, userID, productID, quantity).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to upsert cart item for product %s: %w", productID, err)
	}

	return &item, nil
}

func (r *postgresRepository) Delete(ctx context.Context, userID, itemID uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart item %s: %w", itemID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteMany(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		ids = append(ids, id.String())
	}

	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2::uuid[])`, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to bulk delete cart items for user %s: %w", userID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) AdjustQuantity(ctx context.Context, userID, itemID uuid.UUID, delta int) (int, error) {
	query := `
		UPDATE cart_items
		SET quantity = GREATEST(quantity + $1, 1), updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING quantity
	`

	var quantity int
	err := r.db.QueryRow(ctx, query, delta, itemID, userID).Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		return 0, fmt.Errorf("repository: failed to adjust cart item %s: %w", itemID, err)
	}
	return quantity, nil
}

func (r *postgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, p.name, p.slug, p.price, ci.quantity, ci.created_at, ci.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, ci.id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductSlug,
			&item.UnitPrice,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for user %s: %w", userID, err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for user %s: %w", userID, err)
	}

	return items, nil
}

func (r *postgresRepository) ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to clear cart for user %s: %w", userID, err)
	}
	return cmdTag.RowsAffected(), nil
}
