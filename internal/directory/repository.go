// Package directory provides read-only lookups over users and referrals.
// Both are owned by the wider back office; the financial engine only needs
// names for ledger descriptions and the referrer of a paying user.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates a missing user.
var ErrNotFound = errors.New("directory: not found")

// User is the minimal projection the engine needs.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory resolves users and referral relationships.
type Directory interface {
	FindUser(ctx context.Context, id int64) (*User, error)
	// FindReferrerOf returns the id of the user who referred userID, or
	// (nil, nil) when the user has no referrer. A user has at most one.
	FindReferrerOf(ctx context.Context, userID int64) (*int64, error)
}

// Repository provides PostgreSQL backed directory lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindUser looks up a user by id.
func (r *Repository) FindUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx,
		`SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("directory: find user %d: %w", id, err)
	}
	return &u, nil
}

// FindReferrerOf resolves the referrer of a user, if any.
func (r *Repository) FindReferrerOf(ctx context.Context, userID int64) (*int64, error) {
	var referrerID int64
	err := r.pool.QueryRow(ctx,
		`SELECT referrer_id FROM referrals WHERE referred_id = $1`, userID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: find referrer of %d: %w", userID, err)
	}
	return &referrerID, nil
}
