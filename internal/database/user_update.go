// internal/database/user_update.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/carpool/internal/models"
)

// ErrUserNotFound is returned when an update targets a missing user.
var ErrUserNotFound = errors.New("user not found")

// UpdateProfile changes a rider's display name and payment link. Empty values
// keep the current ones.
func (d *Directory) UpdateProfile(ctx context.Context, userID uuid.UUID, displayName, paymentLinkBase string) (*models.User, error) {
	q := `UPDATE users
	      SET display_name = COALESCE(NULLIF($2, ''), display_name),
	          payment_link_base = COALESCE(NULLIF($3, ''), payment_link_base)
	      WHERE id = $1
	      RETURNING ` + userColumns

	var user *models.User
	err := pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var e error
		user, e = scanUser(tx.QueryRow(ctx, q, userID, displayName, paymentLinkBase))
		return e
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return user, nil
}
