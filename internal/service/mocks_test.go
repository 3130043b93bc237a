package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/diagnosis/stayhold/internal/notify"
	"github.com/diagnosis/stayhold/internal/repo/postgres"
	"github.com/diagnosis/stayhold/internal/service"
)

// ---------- Mocks ----------

type mockBookingRepo struct {
	mu         sync.Mutex
	nextID     int
	bookings   map[string]*domain.Booking // id -> booking
	createErrs []error
	created    int
	// race applies a status change just before the next guarded write of
	// that booking, as a concurrent writer would.
	race    map[string]domain.BookingStatus
	listErr error

	blocks   *mockBlockRepo
	payments *mockPaymentRepo
}

func (m *mockBookingRepo) add(b domain.Booking) *domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		m.nextID++
		b.ID = fmt.Sprintf("bk-%d", m.nextID)
	}
	m.bookings[b.ID] = &b
	return &b
}

func (m *mockBookingRepo) get(id string) domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *mockBookingRepo) GetByInvoice(_ context.Context, invoice string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.InvoiceNumber == invoice {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockBookingRepo) Transition(_ context.Context, id string, t domain.BookingTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return false, nil
	}
	if s, ok := m.race[id]; ok {
		b.Status = s
		delete(m.race, id)
	}
	for _, from := range t.From {
		if b.Status == from {
			b.Status = t.To
			if t.PaidAt != nil {
				b.PaidAt = t.PaidAt
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBookingRepo) ListExpiredHolds(_ context.Context, now time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.Status == domain.BookingPendingHold && b.HoldExpiresAt != nil && !b.HoldExpiresAt.After(now) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt) })
	return out, nil
}

func (m *mockBookingRepo) CreateHold(ctx context.Context, in *domain.NewHold) (*domain.Booking, error) {
	m.mu.Lock()
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	existing, _ := m.blocks.List(ctx, domain.BlockFilter{PropertyID: in.PropertyID})
	for _, blk := range existing {
		if interval.Overlaps(blk.Range, in.Stay) {
			return nil, postgres.ErrOverlap
		}
	}

	expires := in.HoldExpiresAt
	guestID := in.GuestID
	b := m.add(domain.Booking{
		InvoiceNumber:    in.InvoiceNumber,
		PropertyID:       in.PropertyID,
		Status:           domain.BookingPendingHold,
		GuestID:          &guestID,
		Stay:             in.Stay,
		Guests:           in.Guests,
		NightlyRateCents: in.Quote.NightlyRateCents,
		SubtotalCents:    in.Quote.SubtotalCents,
		CleaningFeeCents: in.Quote.CleaningFeeCents,
		TaxesCents:       in.Quote.TaxesCents,
		TotalCents:       in.Quote.TotalCents,
		HoldExpiresAt:    &expires,
	})
	m.mu.Lock()
	m.created++
	m.mu.Unlock()

	m.payments.add(domain.Payment{BookingID: b.ID, Status: domain.PaymentUnverified, Processor: in.Processor, AmountCents: in.Quote.TotalCents})
	bookingID := b.ID
	m.blocks.add(domain.CalendarBlock{
		PropertyID: in.PropertyID, Range: in.Stay, Source: domain.SourceInternal,
		Status: domain.StatusInternalPending, BookingID: &bookingID,
	})
	return b, nil
}

type mockBlockRepo struct {
	mu     sync.Mutex
	nextID int
	blocks []domain.CalendarBlock

	listErr   error
	insertErr error
	patchErr  error
	deleteErr error
	// failDelete fails Delete calls that include any of these block ids.
	failDelete map[string]bool

	inserts, patches, deletes int
}

func (m *mockBlockRepo) add(b domain.CalendarBlock) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		m.nextID++
		b.ID = fmt.Sprintf("blk-%d", m.nextID)
	}
	m.blocks = append(m.blocks, b)
	return b.ID
}

func (m *mockBlockRepo) all() []domain.CalendarBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CalendarBlock(nil), m.blocks...)
}

func (m *mockBlockRepo) byID(id string) (domain.CalendarBlock, bool) {
	for _, b := range m.all() {
		if b.ID == id {
			return b, true
		}
	}
	return domain.CalendarBlock{}, false
}

func (m *mockBlockRepo) List(_ context.Context, f domain.BlockFilter) ([]domain.CalendarBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.CalendarBlock
	for _, b := range m.blocks {
		if f.PropertyID != "" && b.PropertyID != f.PropertyID {
			continue
		}
		if f.BookingID != "" && (b.BookingID == nil || *b.BookingID != f.BookingID) {
			continue
		}
		if f.Source != "" && b.Source != f.Source {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, b.Status) {
			continue
		}
		if f.Window != nil && !interval.Overlaps(*f.Window, b.Range) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func hasStatus(list []domain.BlockStatus, s domain.BlockStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *mockBlockRepo) Insert(_ context.Context, blocks []domain.CalendarBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, b := range blocks {
		m.add(b)
	}
	m.mu.Lock()
	m.inserts++
	m.mu.Unlock()
	return nil
}

func (m *mockBlockRepo) Patch(_ context.Context, ids []string, p domain.BlockPatch) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	m.patches++
	set := toSet(ids)
	for i := range m.blocks {
		if !set[m.blocks[i].ID] {
			continue
		}
		if p.Status != nil {
			m.blocks[i].Status = *p.Status
		}
		if p.Range != nil {
			m.blocks[i].Range = *p.Range
		}
		if p.LastSyncAt != nil {
			at := *p.LastSyncAt
			m.blocks[i].LastSyncAt = &at
		}
	}
	return nil
}

func (m *mockBlockRepo) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range ids {
		if m.failDelete[id] {
			return fmt.Errorf("delete %s: connection reset", id)
		}
	}
	m.deletes++
	set := toSet(ids)
	kept := m.blocks[:0]
	for _, b := range m.blocks {
		if !set[b.ID] {
			kept = append(kept, b)
		}
	}
	m.blocks = kept
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	nextID   int
	payments []domain.Payment
	markErr  error
	proofs   map[string]domain.ProofPatch
}

func (m *mockPaymentRepo) add(p domain.Payment) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = fmt.Sprintf("pay-%d", m.nextID)
	m.payments = append(m.payments, p)
	return p.ID
}

func (m *mockPaymentRepo) ListByBooking(_ context.Context, bookingID string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) MarkVerified(_ context.Context, bookingID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return 0, m.markErr
	}
	var n int64
	for i := range m.payments {
		if m.payments[i].BookingID == bookingID && m.payments[i].Status != domain.PaymentVerified {
			m.payments[i].Status = domain.PaymentVerified
			verifiedAt := at
			m.payments[i].VerifiedAt = &verifiedAt
			n++
		}
	}
	return n, nil
}

func (m *mockPaymentRepo) AttachProof(_ context.Context, paymentID string, p domain.ProofPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proofs == nil {
		m.proofs = make(map[string]domain.ProofPatch)
	}
	m.proofs[paymentID] = p
	for i := range m.payments {
		if m.payments[i].ID == paymentID {
			m.payments[i].Status = domain.PaymentProofSubmitted
		}
	}
	return nil
}

type mockGuestRepo struct {
	mu     sync.Mutex
	guests map[string]*domain.Guest
}

func (m *mockGuestRepo) Upsert(_ context.Context, fullName, email, phone string) (*domain.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.guests {
		if g.Email == email {
			g.FullName, g.Phone = fullName, phone
			cp := *g
			return &cp, nil
		}
	}
	g := &domain.Guest{ID: fmt.Sprintf("g-%d", len(m.guests)+1), FullName: fullName, Email: email, Phone: phone}
	m.guests[g.ID] = g
	cp := *g
	return &cp, nil
}

func (m *mockGuestRepo) FindByID(_ context.Context, id string) (*domain.Guest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

type mockAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (m *mockAuditRepo) Record(_ context.Context, ev domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockAuditRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.Action)
	}
	return out
}

type sentMail struct {
	To       string
	Subject  string
	BccOwner bool
}

type mockNotifier struct {
	mu      sync.Mutex
	guest   []sentMail
	owner   []sentMail
	failure []sentMail
	err     error
}

func (m *mockNotifier) NotifyGuest(_ context.Context, to string, c notify.Content, bccOwner bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guest = append(m.guest, sentMail{To: to, Subject: c.Subject, BccOwner: bccOwner})
	return m.err
}

func (m *mockNotifier) NotifyOwner(_ context.Context, c notify.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = append(m.owner, sentMail{Subject: c.Subject})
	return m.err
}

func (m *mockNotifier) NotifyFailure(_ context.Context, c notify.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = append(m.failure, sentMail{Subject: c.Subject})
	return m.err
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
	err      error
}

func (m *mockPublisher) Publish(_ context.Context, subject string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	m.payloads = append(m.payloads, data)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

type mockFeed struct {
	body  string
	err   error
	calls int
}

func (m *mockFeed) Fetch(context.Context) (string, error) {
	m.calls++
	return m.body, m.err
}

type mockProofStore struct {
	paths []string
	err   error
}

func (m *mockProofStore) Put(_ context.Context, objectPath, _ string, _ []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.paths = append(m.paths, objectPath)
	return "https://files.test/" + objectPath, nil
}

// ---------- Harness ----------

const testProperty = "ashburn"

var testNow = time.Date(2030, time.January, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	bookings *mockBookingRepo
	blocks   *mockBlockRepo
	payments *mockPaymentRepo
	guests   *mockGuestRepo
	audit    *mockAuditRepo
	notifier *mockNotifier
	events   *mockPublisher
	deps     service.Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		blocks:   &mockBlockRepo{},
		payments: &mockPaymentRepo{},
		guests:   &mockGuestRepo{guests: make(map[string]*domain.Guest)},
		audit:    &mockAuditRepo{},
		notifier: &mockNotifier{},
		events:   &mockPublisher{},
	}
	h.bookings = &mockBookingRepo{
		bookings: make(map[string]*domain.Booking),
		race:     make(map[string]domain.BookingStatus),
		blocks:   h.blocks,
		payments: h.payments,
	}
	h.deps = service.Deps{
		Bookings: h.bookings,
		Blocks:   h.blocks,
		Payments: h.payments,
		Guests:   h.guests,
		Audit:    h.audit,
		Notifier: h.notifier,
		Emails:   notify.NewEmails(notify.Brand{PropertyName: "Test Stay", SiteURL: "https://stay.test"}),
		Events:   h.events,
		Now:      func() time.Time { return testNow },
	}
	return h
}

// seedHold stores a pending hold with a guest, one payment and the given
// blocks on its dates.
func (h *harness) seedHold(invoice string, expiresAt time.Time, blockStatuses ...domain.BlockStatus) *domain.Booking {
	g, _ := h.guests.Upsert(context.Background(), "Ada Guest", "ada@example.com", "+15550100")
	stay := interval.Range{Start: interval.DayOf(2030, time.January, 10), End: interval.DayOf(2030, time.January, 12)}
	b := h.bookings.add(domain.Booking{
		InvoiceNumber: invoice,
		PropertyID:    testProperty,
		Status:        domain.BookingPendingHold,
		GuestID:       &g.ID,
		Stay:          stay,
		TotalCents:    91300,
		HoldExpiresAt: &expiresAt,
	})
	h.payments.add(domain.Payment{BookingID: b.ID, Status: domain.PaymentUnverified, Processor: domain.ProcessorZelle, AmountCents: 91300})
	for _, s := range blockStatuses {
		id := b.ID
		h.blocks.add(domain.CalendarBlock{PropertyID: testProperty, Range: stay, Source: domain.SourceInternal, Status: s, BookingID: &id})
	}
	return b
}

func (h *harness) blocksOf(bookingID string) []domain.CalendarBlock {
	out, _ := h.blocks.List(context.Background(), domain.BlockFilter{BookingID: bookingID})
	return out
}
