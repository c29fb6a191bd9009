package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ruanmelo/navalha/internal/finance"
)

type summaryItem struct {
	Total        string `json:"total"`
	Paid         string `json:"paid"`
	Pending      string `json:"pending"`
	PaidCount    int    `json:"paid_count"`
	PendingCount int    `json:"pending_count"`
}

// FinanceSummary rolls up service prices by payment status. The window is
// either start/end, a single date, a year[/month], or today's date when
// nothing is given. include_cancelled=false drops cancelled appointments
// from the totals.
func (h *Handler) FinanceSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	agg := h.finance
	if raw := strings.TrimSpace(q.Get("include_cancelled")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid include_cancelled (want true or false)", http.StatusBadRequest)
			return
		}
		agg = finance.NewAggregator(h.dir, include)
	}

	var (
		sum finance.Summary
		err error
	)
	switch {
	case q.Get("start") != "" || q.Get("end") != "":
		var from, to time.Time
		if from, err = parseDay(strings.TrimSpace(q.Get("start"))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if to, err = parseDay(strings.TrimSpace(q.Get("end"))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sum, err = agg.Summarize(r.Context(), from, to)
	case q.Get("date") != "":
		var day time.Time
		if day, err = parseDay(strings.TrimSpace(q.Get("date"))); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sum, err = agg.SummarizeDay(r.Context(), day)
	case q.Get("year") != "":
		year, convErr := strconv.Atoi(strings.TrimSpace(q.Get("year")))
		if convErr != nil {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		if raw := strings.TrimSpace(q.Get("month")); raw != "" {
			month, convErr := strconv.Atoi(raw)
			if convErr != nil || month < 1 || month > 12 {
				http.Error(w, "invalid month (want 1-12)", http.StatusBadRequest)
				return
			}
			sum, err = agg.SummarizeMonth(r.Context(), year, time.Month(month))
		} else {
			sum, err = agg.SummarizeYear(r.Context(), year)
		}
	default:
		sum, err = agg.SummarizeDay(r.Context(), time.Now().UTC())
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryItem{
		Total:        sum.Total.StringFixed(2),
		Paid:         sum.Paid.StringFixed(2),
		Pending:      sum.Pending.StringFixed(2),
		PaidCount:    sum.PaidCount,
		PendingCount: sum.PendingCount,
	})
}
