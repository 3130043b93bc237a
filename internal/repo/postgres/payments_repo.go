package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepo interface {
	ListByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error)
	// MarkVerified verifies every unverified payment of the booking and
	// returns how many rows changed.
	MarkVerified(ctx context.Context, bookingID string, at time.Time) (int64, error)
	AttachProof(ctx context.Context, paymentID string, p domain.ProofPatch) error
}

type PaymentRepoImpl struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepoImpl { return &PaymentRepoImpl{pool: pool} }

const paymentCols = `id::text, booking_id::text, status, processor, amount_cents,
payer_name, reference, note, proof_file_url, received_at, verified_at, created_at`

func (r *PaymentRepoImpl) ListByBooking(ctx context.Context, bookingID string) ([]domain.Payment, error) {
	const q = `SELECT ` + paymentCols + ` FROM payments WHERE booking_id::text=$1 ORDER BY created_at ASC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ps []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.BookingID, &p.Status, &p.Processor, &p.AmountCents,
			&p.PayerName, &p.Reference, &p.Note, &p.ProofFileURL, &p.ReceivedAt, &p.VerifiedAt, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, rows.Err()
}

func (r *PaymentRepoImpl) MarkVerified(ctx context.Context, bookingID string, at time.Time) (int64, error) {
	const q = `UPDATE payments SET status='verified', verified_at=$2
WHERE booking_id::text=$1 AND status <> 'verified'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ct, err := r.pool.Exec(ctx, q, bookingID, at)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PaymentRepoImpl) AttachProof(ctx context.Context, paymentID string, p domain.ProofPatch) error {
	const q = `UPDATE payments SET
    status='proof_submitted', processor=$2, payer_name=$3,
    reference=NULLIF($4, ''), note=NULLIF($5, ''), proof_file_url=$6, received_at=$7
  WHERE id::text=$1 AND status <> 'verified'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, paymentID, string(p.Processor), p.PayerName, p.Reference, p.Note, p.ProofFileURL, p.ReceivedAt)
	return err
}

var _ PaymentRepo = (*PaymentRepoImpl)(nil)
