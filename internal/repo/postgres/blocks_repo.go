package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CalendarBlockRepo is the keyed store of calendar blocks. Patch and Delete
// touch exactly the ids they are given.
type CalendarBlockRepo interface {
	List(ctx context.Context, f domain.BlockFilter) ([]domain.CalendarBlock, error)
	Insert(ctx context.Context, blocks []domain.CalendarBlock) error
	Patch(ctx context.Context, ids []string, p domain.BlockPatch) error
	Delete(ctx context.Context, ids []string) error
}

type CalendarBlockRepoImpl struct{ pool *pgxpool.Pool }

func NewCalendarBlockRepo(pool *pgxpool.Pool) *CalendarBlockRepoImpl {
	return &CalendarBlockRepoImpl{pool: pool}
}

const blockCols = `id::text, property_id, start_date, end_date, source, status,
booking_id::text, external_ref, last_sync_at`

func scanBlock(row pgx.Row) (domain.CalendarBlock, error) {
	var (
		b          domain.CalendarBlock
		start, end time.Time
	)
	if err := row.Scan(
		&b.ID, &b.PropertyID, &start, &end, &b.Source, &b.Status,
		&b.BookingID, &b.ExternalRef, &b.LastSyncAt,
	); err != nil {
		return b, err
	}
	b.Range = interval.Range{Start: interval.DayFromTime(start), End: interval.DayFromTime(end)}
	return b, nil
}

func (r *CalendarBlockRepoImpl) List(ctx context.Context, f domain.BlockFilter) ([]domain.CalendarBlock, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PropertyID != "" {
		add("property_id = $%d", f.PropertyID)
	}
	if f.BookingID != "" {
		add("booking_id::text = $%d", f.BookingID)
	}
	if f.Source != "" {
		add("source = $%d", string(f.Source))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		add("status = ANY($%d)", statuses)
	}
	if f.Window != nil {
		add("end_date > $%d", f.Window.Start.Time())
		add("start_date < $%d", f.Window.End.Time())
	}

	q := `SELECT ` + blockCols + ` FROM calendar_blocks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_date ASC, id ASC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CalendarBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *CalendarBlockRepoImpl) Insert(ctx context.Context, blocks []domain.CalendarBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	const q = `INSERT INTO calendar_blocks
  (property_id, start_date, end_date, source, status, booking_id, external_ref, last_sync_at)
  VALUES ($1, $2, $3, $4, $5, $6::uuid, $7, $8)
  ON CONFLICT (property_id, source, external_ref) WHERE external_ref IS NOT NULL DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, b := range blocks {
		batch.Queue(q, b.PropertyID, b.Range.Start.Time(), b.Range.End.Time(),
			string(b.Source), string(b.Status), b.BookingID, b.ExternalRef, b.LastSyncAt)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *CalendarBlockRepoImpl) Patch(ctx context.Context, ids []string, p domain.BlockPatch) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE calendar_blocks SET
    status = COALESCE($2, status),
    start_date = COALESCE($3, start_date),
    end_date = COALESCE($4, end_date),
    last_sync_at = COALESCE($5, last_sync_at)
  WHERE id::text = ANY($1)`

	var (
		status     *string
		start, end *time.Time
	)
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	if p.Range != nil {
		s, e := p.Range.Start.Time(), p.Range.End.Time()
		start, end = &s, &e
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := r.pool.Exec(ctx, q, ids, status, start, end, p.LastSyncAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (r *CalendarBlockRepoImpl) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `DELETE FROM calendar_blocks WHERE id::text = ANY($1)`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, ids)
	return err
}

var _ CalendarBlockRepo = (*CalendarBlockRepoImpl)(nil)
