// Package dbtest connects repository tests to a real Postgres instance.
// Tests are skipped unless DB_HOST_TEST is set.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func migrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
}

// Connect returns a migrated database with all tables truncated after the test.
func Connect(t *testing.T) *db.Postgres {
	t.Helper()

	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		t.Skip("DB_HOST_TEST not set, skipping postgres repository test")
	}

	cfg := config.PostgresConfig{
		Host:            host,
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "123456"),
		DBName:          envOr("DB_NAME_TEST", "storefront_test"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MigrationsPath:  migrationsPath(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.New(ctx, cfg)
	require.NoError(t, err, "failed to connect to test database")

	t.Cleanup(func() {
		Truncate(t, pg.Pool)
		pg.Close()
	})

	Truncate(t, pg.Pool)
	return pg
}

func Truncate(tb testing.TB, pool *pgxpool.Pool) {
	tb.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE TABLE order_items, orders, wishlists, cart_items, reviews, products, categories, user_profiles, users CASCADE`)
	require.NoError(tb, err, "failed to truncate tables")
}

// SeedUser inserts a bare user row and returns its id.
func SeedUser(t *testing.T, pool *pgxpool.Pool, username string) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, 'x')`,
		id, username, username+"@example.com")
	require.NoError(t, err)
	return id
}

// SeedProduct inserts a product (and its category) with the given price.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, name, price string) uuid.UUID {
	t.Helper()
	categoryID := uuid.Must(uuid.NewV4())
	_, err := pool.Exec(context.Background(),
		`INSERT INTO categories (id, name, slug) VALUES ($1, $2, $3)`,
		categoryID, name+" category", categoryID.String())
	require.NoError(t, err)

	id := uuid.Must(uuid.NewV4())
	_, err = pool.Exec(context.Background(),
		`INSERT INTO products (id, category_id, name, slug, price, stock) VALUES ($1, $2, $3, $4, $5, 100)`,
		id, categoryID, name, id.String(), decimal.RequireFromString(price))
	require.NoError(t, err)
	return id
}
