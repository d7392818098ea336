// Package detect turns monthly portfolio tables into loan-level
// servicer-transfer events. Two strategies share one event shape:
// Diff infers transfers by comparing consecutive months, Flag reads
// the explicit seller field GNMA populates in the transfer month.
package detect

import (
	"fmt"

	"github.com/invertedv/msr/portfolio"
	"github.com/shopspring/decimal"
)

// Event is one loan changing servicer. UPB is the balance in the
// transition month; PrevUPB is the balance in the last month the
// seller held the loan (equal to UPB under the flag strategy, which
// never sees the prior month). FromID/ToID carry the raw issuer IDs
// under the flag strategy and are empty otherwise.
type Event struct {
	LoanID  string
	Month   portfolio.Month
	From    string
	To      string
	FromID  string
	ToID    string
	UPB     decimal.Decimal
	PrevUPB decimal.Decimal
}

// Diff compares two consecutive months of the same agency. A loan
// present in both months with a different servicer is a transfer.
// Loans present in only one month (payoffs, new originations, table
// gaps) are excluded by construction, not reported.
//
// A renamed servicer looks identical to a sold one here; the
// downstream classifier separates the two from the fraction columns.
func Diff(prev, curr *portfolio.Table) ([]Event, error) {
	if curr.Month != prev.Month.Next() {
		return nil, fmt.Errorf("months %s and %s are not consecutive", prev.Month, curr.Month)
	}
	byID := make(map[string]int, len(prev.Loans))
	for i, ln := range prev.Loans {
		byID[ln.ID] = i
	}

	var events []Event
	for _, ln := range curr.Loans {
		i, ok := byID[ln.ID]
		if !ok {
			continue
		}
		was := prev.Loans[i]
		if was.Servicer == ln.Servicer {
			continue
		}
		events = append(events, Event{
			LoanID:  ln.ID,
			Month:   curr.Month,
			From:    was.Servicer,
			To:      ln.Servicer,
			UPB:     ln.UPB,
			PrevUPB: was.UPB,
		})
	}
	return events, nil
}

// NameResolver maps an issuer ID to a display name.
type NameResolver interface {
	Name(id string) string
}

// Flag emits one event per record whose seller field is populated.
// The table must already be deduplicated across physical sources
// (portfolio.NewDeduped), else events double-count. A nil resolver
// leaves raw IDs as names.
func Flag(tbl *portfolio.Table, names NameResolver) []Event {
	var events []Event
	for _, ln := range tbl.Loans {
		if ln.Seller == "" {
			continue
		}
		from, to := ln.Seller, ln.Servicer
		if names != nil {
			from, to = names.Name(ln.Seller), names.Name(ln.Servicer)
		}
		events = append(events, Event{
			LoanID:  ln.ID,
			Month:   tbl.Month,
			From:    from,
			To:      to,
			FromID:  ln.Seller,
			ToID:    ln.Servicer,
			UPB:     ln.UPB,
			PrevUPB: ln.UPB,
		})
	}
	return events
}
