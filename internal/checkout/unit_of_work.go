package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var ErrUserNotFound = errors.New("user not found")

// Tx exposes the repositories bound to one checkout transaction.
type Tx interface {
	Cart() cart.Repository
	Orders() order.Repository
}

// UnitOfWork runs fn atomically while holding the per-user checkout lock.
// If fn returns an error nothing it did is persisted.
type UnitOfWork interface {
	Do(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error
}

type postgresUnitOfWork struct {
	pool *pgxpool.Pool
}

func NewPostgresUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &postgresUnitOfWork{pool: pool}
}

type postgresTx struct {
	cart   cart.Repository
	orders order.Repository
}

func (t *postgresTx) Cart() cart.Repository    { return t.cart }
func (t *postgresTx) Orders() order.Repository { return t.orders }

func (u *postgresUnitOfWork) Do(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error {
	return db.WithTx(ctx, u.pool, func(tx pgx.Tx) error {
		// Serializes concurrent checkouts of the same user until commit.
		var locked uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("repository: failed to lock user %s for checkout: %w", userID, err)
		}

		return fn(&postgresTx{
			cart:   cart.NewRepository(tx),
			orders: order.NewRepository(tx),
		})
	})
}
