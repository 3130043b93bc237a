package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Brand struct {
	PropertyName string
	Signature    string
	SiteURL      string
	Location     *time.Location
	ZelleEmail   string
	VenmoHandle  string
}

// Emails renders every message the booking flows send.
type Emails struct {
	brand   Brand
	printer *message.Printer
}

func NewEmails(b Brand) *Emails {
	if b.Location == nil {
		b.Location = time.UTC
	}
	if b.Signature == "" {
		b.Signature = "Stroman Properties"
	}
	return &Emails{brand: b, printer: message.NewPrinter(language.AmericanEnglish)}
}

// Stay is the display form of a booked date range.
type Stay struct {
	CheckIn  interval.Day
	CheckOut interval.Day
	Nights   int
}

// StayFromBlocks derives a stay from the earliest start and latest end of
// blocks. It returns nil when there are no blocks.
func StayFromBlocks(blocks []domain.CalendarBlock) *Stay {
	if len(blocks) == 0 {
		return nil
	}
	r := blocks[0].Range
	for _, b := range blocks[1:] {
		if b.Range.Start < r.Start {
			r.Start = b.Range.Start
		}
		if b.Range.End > r.End {
			r.End = b.Range.End
		}
	}
	return StayFromRange(r)
}

func StayFromRange(r interval.Range) *Stay {
	if !r.Valid() {
		return nil
	}
	return &Stay{CheckIn: r.Start, CheckOut: r.End, Nights: r.Nights()}
}

type row struct{ Label, Value string }

type link struct{ Label, Href string }

type view struct {
	Title      string
	Heading    string
	Greeting   string
	Paragraphs []string
	Rows       []row
	Action     *link
	After      []string
	Signature  string
}

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;color:#111827;background:#f9fafb;padding:24px">
<div style="max-width:560px;margin:0 auto;background:#ffffff;padding:32px;border-radius:8px">
<h1 style="font-size:22px;margin:0 0 16px">{{.Heading}}</h1>
{{if .Greeting}}<p>{{.Greeting}}</p>{{end}}
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Rows}}<table role="presentation" style="width:100%;border-spacing:0 8px;margin:0 0 24px">
{{range .Rows}}<tr><td style="font-weight:600;width:45%">{{.Label}}</td><td style="text-align:right">{{.Value}}</td></tr>
{{end}}</table>{{end}}
{{with .Action}}<p style="text-align:center"><a href="{{.Href}}" style="background:#111827;color:#ffffff;padding:12px 20px;border-radius:6px;text-decoration:none">{{.Label}}</a></p>{{end}}
{{range .After}}<p>{{.}}</p>
{{end}}<p>Regards,<br>{{.Signature}}</p>
</div></body></html>`))

func (e *Emails) render(subject string, v view) Content {
	v.Signature = e.brand.Signature
	if v.Title == "" {
		v.Title = subject
	}

	var html bytes.Buffer
	if err := layout.Execute(&html, v); err != nil {
		html.Reset()
	}

	var text strings.Builder
	if v.Greeting != "" {
		text.WriteString(v.Greeting + "\n\n")
	}
	for _, p := range v.Paragraphs {
		text.WriteString(p + "\n\n")
	}
	for _, r := range v.Rows {
		fmt.Fprintf(&text, "%s: %s\n", r.Label, r.Value)
	}
	if len(v.Rows) > 0 {
		text.WriteString("\n")
	}
	if v.Action != nil {
		fmt.Fprintf(&text, "%s: %s\n\n", v.Action.Label, v.Action.Href)
	}
	for _, p := range v.After {
		text.WriteString(p + "\n\n")
	}
	text.WriteString("Regards,\n" + v.Signature + "\n")

	return Content{Subject: subject, Text: text.String(), HTML: html.String()}
}

func (e *Emails) subject(kind, invoice string) string {
	return fmt.Sprintf("[%s] %s - Invoice %s", e.brand.PropertyName, kind, invoice)
}

func greeting(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return "Hi " + n + ","
	}
	return "Hello,"
}

// Money formats cents as US dollars with grouping.
func (e *Emails) Money(cents int64) string {
	return e.printer.Sprintf("$%.2f", float64(cents)/100)
}

func (e *Emails) Date(d interval.Day) string {
	return d.Time().Format("Jan 2, 2006")
}

func (e *Emails) DateTime(t time.Time) string {
	return t.In(e.brand.Location).Format("Jan 2, 2006 3:04 PM MST")
}

func (e *Emails) stayRows(s *Stay, combined bool) []row {
	if s == nil {
		return nil
	}
	if combined {
		return []row{{"Requested stay", e.Date(s.CheckIn) + " to " + e.Date(s.CheckOut)}}
	}
	return []row{
		{"Check-in", e.Date(s.CheckIn)},
		{"Check-out", e.Date(s.CheckOut)},
		{"Nights", fmt.Sprint(s.Nights)},
	}
}

// ProofURL is where a guest uploads payment proof for invoice.
func (e *Emails) ProofURL(invoice string) string {
	return e.brand.SiteURL + "/bookings/" + url.PathEscape(invoice) + "/upload-proof"
}

type HoldCreatedData struct {
	GuestName     string
	InvoiceNumber string
	Stay          *Stay
	HoldExpiresAt time.Time
	TotalCents    int64
	Processor     domain.PaymentProcessor
}

func (e *Emails) HoldCreated(d HoldCreatedData) Content {
	total := e.Money(d.TotalCents)
	rows := []row{{"Invoice", d.InvoiceNumber}}
	rows = append(rows, e.stayRows(d.Stay, false)...)
	rows = append(rows, row{"Total due", total}, row{"Hold expires", e.DateTime(d.HoldExpiresAt)})

	return e.render(e.subject("Hold Created", d.InvoiceNumber), view{
		Heading:  "Hold confirmed for " + e.brand.PropertyName,
		Greeting: greeting(d.GuestName),
		Paragraphs: []string{
			"Thanks for choosing " + e.brand.PropertyName + "! We have placed a temporary hold on your requested dates while we await your payment.",
		},
		Rows:   rows,
		Action: &link{Label: "Upload payment proof", Href: e.ProofURL(d.InvoiceNumber)},
		After: []string{
			e.paymentInstructions(d.Processor, total, d.InvoiceNumber),
			"Once your transfer is sent, upload proof so we can verify and fully confirm your stay.",
		},
	})
}

func (e *Emails) paymentInstructions(p domain.PaymentProcessor, total, invoice string) string {
	switch p {
	case domain.ProcessorZelle:
		return fmt.Sprintf("Send %s via Zelle to %s. Include %s in the memo so we can match your transfer quickly.", total, e.brand.ZelleEmail, invoice)
	case domain.ProcessorVenmo:
		return fmt.Sprintf("Send %s via Venmo to %s. Use %s as the memo and add your stay dates in the notes.", total, e.brand.VenmoHandle, invoice)
	default:
		return fmt.Sprintf("Use the payment method you selected to remit %s to %s.", total, e.brand.Signature)
	}
}

type BookingConfirmedData struct {
	GuestName     string
	InvoiceNumber string
	Stay          *Stay
	PaidAt        time.Time
}

func (e *Emails) BookingConfirmed(d BookingConfirmedData) Content {
	rows := []row{{"Invoice", d.InvoiceNumber}}
	rows = append(rows, e.stayRows(d.Stay, false)...)
	rows = append(rows, row{"Payment verified", e.DateTime(d.PaidAt)})

	return e.render(e.subject("Booking Confirmed", d.InvoiceNumber), view{
		Heading:  "Your stay is confirmed",
		Greeting: greeting(d.GuestName),
		Paragraphs: []string{
			"We have verified your payment and your booking at " + e.brand.PropertyName + " is confirmed.",
		},
		Rows:  rows,
		After: []string{"We will send check-in details closer to your arrival. Reply to this email with any questions."},
	})
}

type HoldExpiredData struct {
	GuestName     string
	InvoiceNumber string
	Stay          *Stay
	HoldExpiresAt *time.Time
	ExpiredAt     time.Time
}

func (e *Emails) HoldExpired(d HoldExpiredData) Content {
	rows := []row{{"Invoice", d.InvoiceNumber}}
	rows = append(rows, e.stayRows(d.Stay, true)...)
	if d.HoldExpiresAt != nil {
		rows = append(rows, row{"Original hold deadline", e.DateTime(*d.HoldExpiresAt)})
	}
	rows = append(rows, row{"Expired at", e.DateTime(d.ExpiredAt)})

	return e.render(e.subject("Hold Expired", d.InvoiceNumber), view{
		Heading:  "Hold expired",
		Greeting: greeting(d.GuestName),
		Paragraphs: []string{
			"We didn't receive payment in time, so the temporary hold on " + e.brand.PropertyName + " has expired. The dates you requested are now available for other guests.",
		},
		Rows:  rows,
		After: []string{"If you still want to stay with us, reply to this email and we'll help you set up a new hold or explore alternative dates."},
	})
}

type BookingCanceledData struct {
	GuestName     string
	InvoiceNumber string
	Stay          *Stay
	Reason        string
}

func (e *Emails) BookingCanceled(d BookingCanceledData) Content {
	rows := []row{{"Invoice", d.InvoiceNumber}}
	rows = append(rows, e.stayRows(d.Stay, true)...)
	if r := strings.TrimSpace(d.Reason); r != "" {
		rows = append(rows, row{"Reason", r})
	}

	return e.render(e.subject("Booking Canceled", d.InvoiceNumber), view{
		Heading:    "Booking canceled",
		Greeting:   greeting(d.GuestName),
		Paragraphs: []string{"Your booking hold at " + e.brand.PropertyName + " has been canceled and the dates have been released."},
		Rows:       rows,
		After:      []string{"If this was unexpected, reply to this email and we'll sort it out."},
	})
}

type ProofReceivedData struct {
	InvoiceNumber string
	GuestName     string
	GuestEmail    string
	Stay          *Stay
	TotalCents    int64
	Processor     domain.PaymentProcessor
	PayerName     string
	Reference     string
	Note          string
	ProofURL      string
}

func (e *Emails) ProofReceived(d ProofReceivedData) Content {
	rows := []row{{"Invoice", d.InvoiceNumber}}
	if d.GuestName != "" {
		rows = append(rows, row{"Guest", strings.TrimSpace(d.GuestName + " " + angle(d.GuestEmail))})
	}
	rows = append(rows, e.stayRows(d.Stay, true)...)
	rows = append(rows,
		row{"Amount due", e.Money(d.TotalCents)},
		row{"Processor", string(d.Processor)},
		row{"Payer", d.PayerName},
	)
	if d.Reference != "" {
		rows = append(rows, row{"Reference", d.Reference})
	}
	var after []string
	if d.Note != "" {
		after = append(after, "Guest note: "+d.Note)
	}
	after = append(after, "Verify the transfer, then confirm the booking from the admin tools.")

	return e.render("Payment proof received.", view{
		Title:      e.subject("Payment Proof Received", d.InvoiceNumber),
		Heading:    "Payment proof received.",
		Paragraphs: []string{"A guest uploaded payment proof for invoice " + d.InvoiceNumber + "."},
		Rows:       rows,
		Action:     &link{Label: "View proof", Href: d.ProofURL},
		After:      after,
	})
}

func angle(email string) string {
	if email == "" {
		return ""
	}
	return "<" + email + ">"
}

// SweepFailure is sent to the operator when some holds could not be
// expired.
type SweepFailure struct {
	BookingID     string `json:"booking_id"`
	InvoiceNumber string `json:"invoice_number"`
	Error         string `json:"error"`
}

func (e *Emails) SweepFailures(processed int, failures []SweepFailure) Content {
	rows := make([]row, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, row{f.InvoiceNumber + " (" + f.BookingID + ")", f.Error})
	}
	return e.render("Hold expiration cron encountered errors", view{
		Heading: "Hold expiration cron encountered errors",
		Paragraphs: []string{
			fmt.Sprintf("%d of %d expired holds could not be processed. They will be retried on the next run.", len(failures), processed),
		},
		Rows: rows,
	})
}

func (e *Emails) SyncFailure(err error) Content {
	return e.render("Airbnb calendar sync failed", view{
		Heading:    "Airbnb calendar sync failed",
		Paragraphs: []string{"The external calendar could not be synchronized. Availability may be stale until the next successful run.", err.Error()},
	})
}
