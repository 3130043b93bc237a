package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrOverlap is returned when a hold would overlap an existing block.
	ErrOverlap = errors.New("calendar overlap")
	// ErrInvoiceTaken is returned when the generated invoice number exists.
	ErrInvoiceTaken = errors.New("invoice number already in use")
)

type BookingRepo interface {
	GetByInvoice(ctx context.Context, invoice string) (*domain.Booking, error)
	// Transition writes t only if the booking is still in one of t.From.
	// It reports false when the guard did not match.
	Transition(ctx context.Context, id string, t domain.BookingTransition) (bool, error)
	// ListExpiredHolds returns pending holds whose expiry is at or before
	// now, oldest expiry first.
	ListExpiredHolds(ctx context.Context, now time.Time) ([]domain.Booking, error)
	// CreateHold inserts the booking, its payment row and its pending block
	// in one transaction.
	CreateHold(ctx context.Context, in *domain.NewHold) (*domain.Booking, error)
}

type BookingRepoImpl struct{ pool *pgxpool.Pool }

func NewBookingRepo(pool *pgxpool.Pool) *BookingRepoImpl { return &BookingRepoImpl{pool: pool} }

const bookingCols = `id::text, invoice_number, property_id, status, guest_id::text,
check_in, check_out, guests,
nightly_rate_cents, subtotal_cents, cleaning_fee_cents, taxes_cents, total_cents,
hold_expires_at, paid_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b                 domain.Booking
		checkIn, checkOut time.Time
	)
	err := row.Scan(
		&b.ID, &b.InvoiceNumber, &b.PropertyID, &b.Status, &b.GuestID,
		&checkIn, &checkOut, &b.Guests,
		&b.NightlyRateCents, &b.SubtotalCents, &b.CleaningFeeCents, &b.TaxesCents, &b.TotalCents,
		&b.HoldExpiresAt, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Stay = interval.Range{Start: interval.DayFromTime(checkIn), End: interval.DayFromTime(checkOut)}
	return &b, nil
}

func (r *BookingRepoImpl) GetByInvoice(ctx context.Context, invoice string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE invoice_number=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, q, invoice))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *BookingRepoImpl) Transition(ctx context.Context, id string, t domain.BookingTransition) (bool, error) {
	const q = `UPDATE bookings
SET status=$2, paid_at=COALESCE($3, paid_at), updated_at=now()
WHERE id::text=$1 AND status = ANY($4)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	ct, err := r.pool.Exec(ctx, q, id, string(t.To), t.PaidAt, from)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *BookingRepoImpl) ListExpiredHolds(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	const q = `
		SELECT ` + bookingCols + `
		FROM bookings
		WHERE status = 'pending_hold'
		  AND hold_expires_at IS NOT NULL
		  AND hold_expires_at <= $1
		ORDER BY hold_expires_at ASC
	`
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bs []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bs = append(bs, *b)
	}
	return bs, rows.Err()
}

func (r *BookingRepoImpl) CreateHold(ctx context.Context, in *domain.NewHold) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialize holds per property so the overlap check below cannot race.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, in.PropertyID); err != nil {
		return nil, err
	}

	const overlapQ = `SELECT EXISTS (
		SELECT 1 FROM calendar_blocks
		WHERE property_id=$1 AND start_date < $3 AND $2 < end_date)`
	var taken bool
	if err := tx.QueryRow(ctx, overlapQ, in.PropertyID, in.Stay.Start.Time(), in.Stay.End.Time()).Scan(&taken); err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrOverlap
	}

	const bookingQ = `INSERT INTO bookings (
    invoice_number, property_id, status, guest_id,
    check_in, check_out, guests,
    nightly_rate_cents, subtotal_cents, cleaning_fee_cents, taxes_cents, total_cents,
    hold_expires_at
  ) VALUES ($1,$2,'pending_hold',$3::uuid,$4,$5,$6,$7,$8,$9,$10,$11,$12)
  RETURNING ` + bookingCols
	b, err := scanBooking(tx.QueryRow(ctx, bookingQ,
		in.InvoiceNumber, in.PropertyID, in.GuestID,
		in.Stay.Start.Time(), in.Stay.End.Time(), in.Guests,
		in.Quote.NightlyRateCents, in.Quote.SubtotalCents, in.Quote.CleaningFeeCents, in.Quote.TaxesCents, in.Quote.TotalCents,
		in.HoldExpiresAt,
	))
	if err != nil {
		return nil, mapWriteError(err)
	}

	const paymentQ = `INSERT INTO payments (booking_id, status, processor, amount_cents)
VALUES ($1::uuid, 'unverified', $2, $3)`
	if _, err := tx.Exec(ctx, paymentQ, b.ID, string(in.Processor), in.Quote.TotalCents); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	const blockQ = `INSERT INTO calendar_blocks (property_id, start_date, end_date, source, status, booking_id)
VALUES ($1, $2, $3, 'internal', 'internal_pending', $4::uuid)`
	if _, err := tx.Exec(ctx, blockQ, in.PropertyID, in.Stay.Start.Time(), in.Stay.End.Time(), b.ID); err != nil {
		return nil, mapWriteError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

// mapWriteError turns constraint violations into the package sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		return ErrOverlap
	case "23505":
		if pgErr.ConstraintName == "bookings_invoice_number_key" {
			return ErrInvoiceTaken
		}
	}
	return err
}

var _ BookingRepo = (*BookingRepoImpl)(nil)
