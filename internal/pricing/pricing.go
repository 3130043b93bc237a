// Package pricing quotes stays and issues invoice numbers.
package pricing

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/diagnosis/stayhold/internal/domain"
	"github.com/diagnosis/stayhold/internal/interval"
	"github.com/diagnosis/stayhold/pkg/config"
)

const defaultInvoicePrefix = "ASH"

type Pricer struct {
	nightly      float64
	cleaning     float64
	singleNight  float64
	taxRate      float64
	prefix       string
	randSequence func() int
}

func New(cfg config.PricingConfig) *Pricer {
	prefix := strings.TrimSpace(cfg.InvoicePrefix)
	if prefix == "" {
		prefix = defaultInvoicePrefix
	}
	return &Pricer{
		nightly:      cfg.NightlyRate,
		cleaning:     cfg.CleaningFee,
		singleNight:  cfg.SingleNightCleaningFee,
		taxRate:      cfg.TaxRate,
		prefix:       prefix,
		randSequence: func() int { return rand.Intn(10000) },
	}
}

// Quote prices a stay. Taxes apply to the nightly subtotal plus the
// cleaning fee, and every amount is rounded to the cent independently.
func (p *Pricer) Quote(stay interval.Range) (domain.Quote, error) {
	nights := stay.Nights()
	if nights <= 0 {
		return domain.Quote{}, domain.ErrInvalidDateRange
	}

	cleaning := p.cleaning
	if nights == 1 {
		cleaning = p.singleNight
	}

	subtotal := cents(p.nightly * float64(nights))
	cleaningCents := cents(cleaning)
	taxes := int64(math.Round(float64(subtotal+cleaningCents) * p.taxRate))

	return domain.Quote{
		Nights:           nights,
		NightlyRateCents: cents(p.nightly),
		SubtotalCents:    subtotal,
		CleaningFeeCents: cleaningCents,
		TaxesCents:       taxes,
		TotalCents:       subtotal + cleaningCents + taxes,
	}, nil
}

// InvoiceNumber returns PREFIX-YYYY-NNNN for the year of now. The sequence
// is random, so callers retry on a uniqueness conflict.
func (p *Pricer) InvoiceNumber(now time.Time) string {
	return fmt.Sprintf("%s-%d-%04d", p.prefix, now.UTC().Year(), p.randSequence())
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
