// Package aggregate rolls loan-level transfer events into one summary
// row per (seller, buyer, transition month) and annotates each row
// with portfolio-share fractions.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/invertedv/msr/detect"
	"github.com/invertedv/msr/portfolio"
	"github.com/shopspring/decimal"
)

// Regime selects the fraction-denominator rules, which differ between
// the two detection strategies.
type Regime int

const (
	// Diff is month-over-month comparison (FNMA MLLD, FHLMC FU).
	Diff Regime = iota
	// Flag is the explicit seller-field strategy (GNMA).
	Flag
)

func ParseRegime(s string) (Regime, error) {
	switch s {
	case "diff":
		return Diff, nil
	case "flag":
		return Flag, nil
	}
	return 0, fmt.Errorf("unknown regime %q", s)
}

// Row is one (seller, buyer, transition month) summary. TotalUPB is
// the destination-month balance sum; PrevUPB is the prior-month sum
// used as the seller-side numerator under the diff regime. Fraction
// pointers are nil when the denominator is unavailable. SellerID and
// BuyerID are populated under the flag regime only.
type Row struct {
	SellerID string
	BuyerID  string
	From     string
	To       string
	Month    portfolio.Month
	NLoans   int64
	TotalUPB decimal.Decimal
	PrevUPB  decimal.Decimal

	FracSellerN   *float64
	FracSellerUPB *float64
	FracBuyerN    *float64
	FracBuyerUPB  *float64
}

type key struct {
	from, to string
	month    portfolio.Month
}

// Rows groups events into one row per (seller, buyer, month). The
// grouping identity is the raw issuer ID pair when the detector
// supplies one (flag regime) and the servicer name pair otherwise, so
// two issuers sharing a registered name stay separate rows and a
// transfer between them is never mistaken for a self-transfer. An
// event whose seller equals its buyer violates the detector contract;
// such events are dropped and counted rather than aggregated, so a
// ratio bug upstream cannot pass through silently. Returns the
// dropped count.
func Rows(events []detect.Event) ([]Row, int, error) {
	grouped := make(map[key]*Row)
	dropped := 0
	for _, ev := range events {
		from, to := ev.From, ev.To
		if ev.FromID != "" || ev.ToID != "" {
			from, to = ev.FromID, ev.ToID
		}
		if from == to {
			dropped++
			continue
		}
		if from == "" || to == "" {
			return nil, dropped, fmt.Errorf("loan %s month %s: empty servicer identity", ev.LoanID, ev.Month)
		}
		k := key{from: from, to: to, month: ev.Month}
		r, ok := grouped[k]
		if !ok {
			r = &Row{
				SellerID: ev.FromID,
				BuyerID:  ev.ToID,
				From:     ev.From,
				To:       ev.To,
				Month:    ev.Month,
			}
			grouped[k] = r
		}
		r.NLoans++
		r.TotalUPB = r.TotalUPB.Add(ev.UPB)
		r.PrevUPB = r.PrevUPB.Add(ev.PrevUPB)
	}

	rows := make([]Row, 0, len(grouped))
	for _, r := range grouped {
		rows = append(rows, *r)
	}
	return rows, dropped, nil
}

// Annotate fills the four fraction columns in place and returns the
// number of fractions that came out above 1, a data or join problem
// that is surfaced, never clamped away. A zero or missing denominator
// leaves the fraction nil; the row is kept.
//
// Denominators: the buyer's book in the transition month under both
// regimes. The seller's book in the month before the transition under
// the diff regime. Under the flag regime the source never reports the
// seller's pre-transfer book, so it is approximated as the seller's
// remaining book that month plus everything transferred away that
// month.
func Annotate(rows []Row, hist *portfolio.History, regime Regime) int {
	sellerBook := make(map[key]portfolio.Totals)
	if regime == Flag {
		sellerBook = flagSellerBooks(rows, hist)
	}

	overOne := 0
	for i := range rows {
		r := &rows[i]
		sellerKey, buyerKey := r.From, r.To
		if regime == Flag {
			sellerKey, buyerKey = r.SellerID, r.BuyerID
		}

		var seller portfolio.Totals
		var sellerOK bool
		var sellerUPBNum decimal.Decimal
		switch regime {
		case Diff:
			seller, sellerOK = hist.Get(sellerKey, r.Month.Prev())
			sellerUPBNum = r.PrevUPB
		case Flag:
			seller, sellerOK = sellerBook[key{from: sellerKey, month: r.Month}], true
			sellerUPBNum = r.TotalUPB
		}
		if sellerOK {
			r.FracSellerN = fracInt(r.NLoans, seller.NLoans)
			r.FracSellerUPB = frac(sellerUPBNum, seller.UPB)
		}

		if buyer, ok := hist.Get(buyerKey, r.Month); ok {
			r.FracBuyerN = fracInt(r.NLoans, buyer.NLoans)
			r.FracBuyerUPB = frac(r.TotalUPB, buyer.UPB)
		}

		for _, f := range []*float64{r.FracSellerN, r.FracSellerUPB, r.FracBuyerN, r.FracBuyerUPB} {
			if f != nil && *f > 1 {
				overOne++
			}
		}
	}
	return overOne
}

// flagSellerBooks reconstructs each seller's pre-transfer book per
// month: remaining loans still under the seller ID plus loans
// transferred away, summed across all buyers.
func flagSellerBooks(rows []Row, hist *portfolio.History) map[key]portfolio.Totals {
	books := make(map[key]portfolio.Totals)
	for _, r := range rows {
		k := key{from: r.SellerID, month: r.Month}
		b := books[k]
		b.NLoans += r.NLoans
		b.UPB = b.UPB.Add(r.TotalUPB)
		books[k] = b
	}
	for k, b := range books {
		if remain, ok := hist.Get(k.from, k.month); ok {
			b.NLoans += remain.NLoans
			b.UPB = b.UPB.Add(remain.UPB)
			books[k] = b
		}
	}
	return books
}

func fracInt(num, den int64) *float64 {
	if den <= 0 {
		return nil
	}
	f := float64(num) / float64(den)
	return &f
}

func frac(num, den decimal.Decimal) *float64 {
	if den.Sign() <= 0 {
		return nil
	}
	f, _ := num.Div(den).Float64()
	return &f
}

// Sort orders rows by transition month ascending then loan count
// descending, with servicer names and issuer IDs breaking ties so
// identical inputs always produce identical output bytes.
func Sort(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.NLoans != b.NLoans {
			return a.NLoans > b.NLoans
		}
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.SellerID != b.SellerID {
			return a.SellerID < b.SellerID
		}
		return a.BuyerID < b.BuyerID
	})
}
