package user

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
	"github.com/vasiliy-maslov/storefront/internal/db"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("a user with this username or email already exists")
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*Profile, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

// Create inserts the user and its empty profile in one transaction.
func (r *repository) Create(ctx context.Context, u *User) error {
	if pool, ok := r.db.(*pgxpool.Pool); ok {
		return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return insertUser(ctx, tx, u)
		})
	}
	return insertUser(ctx, r.db, u)
}

func insertUser(ctx context.Context, conn db.DBTX, u *User) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate user ID: %w", err)
		}
		u.ID = id
	}

	now := time.Now().UTC()
	_, err := conn.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.IsAdmin, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("repository: failed to insert user: %w", err)
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err = conn.Exec(ctx, `INSERT INTO user_profiles (user_id, updated_at) VALUES ($1, $2)`, u.ID, now)
	if err != nil {
		return fmt.Errorf("repository: failed to create profile for user %s: %w", u.ID, err)
	}

	return nil
}

const selectUser = `SELECT id, username, email, password_hash, is_admin, created_at, updated_at FROM users`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("repository: failed to select user by id %s: %w", id, err)
	}
	return u, err
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, selectUser+` WHERE username = $1`, username))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("repository: failed to select user by username: %w", err)
	}
	return u, err
}

func (r *repository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `
		SELECT user_id, profile_picture, phone_number, address, date_of_birth, updated_at
		FROM user_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.ProfilePicture, &p.PhoneNumber, &p.Address, &p.DateOfBirth, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select profile for user %s: %w", userID, err)
	}
	return &p, nil
}

func (r *repository) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*Profile, error) {
	var p Profile
	err := r.db.QueryRow(ctx, `
		UPDATE user_profiles
		SET phone_number = $1, address = $2, updated_at = NOW()
		WHERE user_id = $3
		RETURNING user_id, profile_picture, phone_number, address, date_of_birth, updated_at
	`, update.PhoneNumber, update.Address, userID).Scan(&p.UserID, &p.ProfilePicture, &p.PhoneNumber, &p.Address, &p.DateOfBirth, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to update profile for user %s: %w", userID, err)
	}
	return &p, nil
}
