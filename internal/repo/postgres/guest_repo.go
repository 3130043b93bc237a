package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type GuestRepo interface {
	// Upsert creates the guest or refreshes name and phone for an existing
	// email.
	Upsert(ctx context.Context, fullName, email, phone string) (*domain.Guest, error)
	FindByID(ctx context.Context, id string) (*domain.Guest, error)
}

type GuestRepoImpl struct{ pool *pgxpool.Pool }

func NewGuestRepo(pool *pgxpool.Pool) *GuestRepoImpl { return &GuestRepoImpl{pool: pool} }

const guestCols = `id::text, full_name, email, phone, created_at`

func (r *GuestRepoImpl) Upsert(ctx context.Context, fullName, email, phone string) (*domain.Guest, error) {
	const q = `
INSERT INTO guests (full_name, email, phone)
VALUES ($1,$2,$3)
ON CONFLICT (email) DO UPDATE SET
  full_name = EXCLUDED.full_name,
  phone = COALESCE(NULLIF(EXCLUDED.phone, ''), guests.phone),
  updated_at = now()
RETURNING ` + guestCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var g domain.Guest
	if err := r.pool.QueryRow(ctx, q, fullName, email, phone).Scan(
		&g.ID, &g.FullName, &g.Email, &g.Phone, &g.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GuestRepoImpl) FindByID(ctx context.Context, id string) (*domain.Guest, error) {
	const q = `SELECT ` + guestCols + ` FROM guests WHERE id::text=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var g domain.Guest
	err := r.pool.QueryRow(ctx, q, id).Scan(&g.ID, &g.FullName, &g.Email, &g.Phone, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

var _ GuestRepo = (*GuestRepoImpl)(nil)
