package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepo interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

type AuditRepoImpl struct{ pool *pgxpool.Pool }

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepoImpl { return &AuditRepoImpl{pool: pool} }

func (r *AuditRepoImpl) Record(ctx context.Context, ev domain.AuditEvent) error {
	const q = `INSERT INTO audit_events (booking_id, action, actor, metadata)
VALUES ($1::uuid, $2, $3, $4::jsonb)`

	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = r.pool.Exec(ctx, q, ev.BookingID, ev.Action, ev.Actor, string(raw))
	return err
}

var _ AuditRepo = (*AuditRepoImpl)(nil)
