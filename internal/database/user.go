// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/carpool/internal/auth"
	"github.com/jason-s-yu/carpool/internal/models"
	"github.com/jason-s-yu/carpool/internal/room"
)

var (
	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned by AuthenticateUser for a bad email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Directory is the user table. It also serves as the rooms' identity provider.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory wraps pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// CreateUser hashes user.Password and inserts the row, assigning an id if unset.
func (d *Directory) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.HashPassword(user.Password, auth.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	q := `INSERT INTO users (id, email, password, display_name, payment_link_base)
	      VALUES ($1, $2, $3, $4, $5)
	      RETURNING created_at`

	err = pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q,
			user.ID, user.Email, user.Password, user.DisplayName, user.PaymentLinkBase,
		).Scan(&user.CreatedAt)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, password, display_name, payment_link_base, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.PaymentLinkBase, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *Directory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(d.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (d *Directory) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(d.pool.QueryRow(ctx, q, id))
}

// AuthenticateUser checks email and password and returns the user on success.
func (d *Directory) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := d.GetUserByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LookupUser resolves a rider for the room coordinator.
func (d *Directory) LookupUser(ctx context.Context, userID uuid.UUID) (room.Identity, error) {
	u, err := d.GetUserByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return room.Identity{}, room.ErrUserNotFound
	}
	if err != nil {
		return room.Identity{}, err
	}
	return room.Identity{
		UserID:          u.ID,
		DisplayName:     u.DisplayName,
		PaymentLinkBase: u.PaymentLinkBase,
	}, nil
}
