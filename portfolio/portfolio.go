// Package portfolio holds the monthly data contract: one typed table
// of loans per agency per month, and the per-servicer totals derived
// from it. Tables are produced by an external ingestion process; this
// package only reads them.
package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Loan is one row of a monthly portfolio table. Servicer is a name
// for the conventional agencies and a numeric issuer ID for GNMA.
// Seller is populated only on GNMA loans that changed hands that
// month.
type Loan struct {
	ID       string
	Servicer string
	Seller   string
	UPB      decimal.Decimal
}

// Table is one agency+month of loans. At most one record per loan ID.
type Table struct {
	Month Month
	Loans []Loan
}

// NewTable builds a Table, rejecting duplicate loan IDs. A duplicate
// within one month violates the input contract and is fatal for the
// agency's run.
func NewTable(month Month, loans []Loan) (*Table, error) {
	seen := make(map[string]bool, len(loans))
	for _, ln := range loans {
		if seen[ln.ID] {
			return nil, fmt.Errorf("month %s: duplicate loan id %s", month, ln.ID)
		}
		seen[ln.ID] = true
	}
	return &Table{Month: month, Loans: loans}, nil
}

// NewDeduped builds a Table keeping the first record per loan ID.
// GNMA months arrive as parallel record streams (llmon1 + llmon2)
// that overlap, so duplicates are expected there, not an error.
func NewDeduped(month Month, loans []Loan) *Table {
	seen := make(map[string]bool, len(loans))
	kept := make([]Loan, 0, len(loans))
	for _, ln := range loans {
		if seen[ln.ID] {
			continue
		}
		seen[ln.ID] = true
		kept = append(kept, ln)
	}
	return &Table{Month: month, Loans: kept}
}

// Totals is a servicer's book in one month.
type Totals struct {
	NLoans int64
	UPB    decimal.Decimal
}

// ServicerTotals sums the table by servicer identity.
func (t *Table) ServicerTotals() map[string]Totals {
	out := make(map[string]Totals)
	for _, ln := range t.Loans {
		tot := out[ln.Servicer]
		tot.NLoans++
		tot.UPB = tot.UPB.Add(ln.UPB)
		out[ln.Servicer] = tot
	}
	return out
}

// History is the read-only (servicer, month) totals lookup built once
// per run and handed to the fraction annotator.
type History struct {
	byMonth map[Month]map[string]Totals
}

func NewHistory() *History {
	return &History{byMonth: make(map[Month]map[string]Totals)}
}

func (h *History) Add(month Month, totals map[string]Totals) {
	h.byMonth[month] = totals
}

func (h *History) Get(servicer string, month Month) (Totals, bool) {
	tots, ok := h.byMonth[month]
	if !ok {
		return Totals{}, false
	}
	t, ok := tots[servicer]
	return t, ok
}

// Source loads one month of an agency's portfolio.
type Source interface {
	Load(ctx context.Context, month Month) (*Table, error)
}
