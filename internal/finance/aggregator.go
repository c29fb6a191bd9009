// Package finance derives revenue and outstanding-payment rollups. It only
// reads; all figures are sums of service prices grouped by payment status.
package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/model"
)

type Summary struct {
	Total        decimal.Decimal
	Paid         decimal.Decimal
	Pending      decimal.Decimal
	PaidCount    int
	PendingCount int
}

type Aggregator struct {
	dir directory.Directory

	// IncludeCancelled keeps cancelled appointments in the totals. Defaults
	// to true for parity with the legacy behavior; flip it off to count only
	// appointments that can still produce revenue.
	includeCancelled bool
}

func NewAggregator(dir directory.Directory, includeCancelled bool) *Aggregator {
	return &Aggregator{dir: dir, includeCancelled: includeCancelled}
}

// Summarize sums service prices for appointments with from <= day <= to.
func (g *Aggregator) Summarize(ctx context.Context, from, to time.Time) (Summary, error) {
	appts, err := g.dir.AppointmentsInRange(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	prices := map[string]decimal.Decimal{}
	sum := Summary{
		Total:   decimal.Zero,
		Paid:    decimal.Zero,
		Pending: decimal.Zero,
	}
	for _, a := range appts {
		if !g.includeCancelled && a.Status == model.StatusCancelled {
			continue
		}
		price, ok := prices[a.ServiceID]
		if !ok {
			svc, err := g.dir.GetService(ctx, a.ServiceID)
			if err != nil {
				return Summary{}, err
			}
			price = svc.Price.Decimal()
			prices[a.ServiceID] = price
		}

		sum.Total = sum.Total.Add(price)
		if a.PaymentStatus == model.PaymentPaid {
			sum.Paid = sum.Paid.Add(price)
			sum.PaidCount++
		} else {
			sum.Pending = sum.Pending.Add(price)
			sum.PendingCount++
		}
	}
	return sum, nil
}

// SummarizeDay is Summarize over a single civil date.
func (g *Aggregator) SummarizeDay(ctx context.Context, day time.Time) (Summary, error) {
	d := model.Day(day)
	return g.Summarize(ctx, d, d)
}

// SummarizeMonth covers the whole calendar month containing year/month.
func (g *Aggregator) SummarizeMonth(ctx context.Context, year int, month time.Month) (Summary, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return g.Summarize(ctx, first, last)
}

// SummarizeYear covers January 1st through December 31st.
func (g *Aggregator) SummarizeYear(ctx context.Context, year int) (Summary, error) {
	return g.Summarize(ctx,
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	)
}
