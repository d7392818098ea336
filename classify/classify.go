// Package classify labels summary rows as likely rebrands or likely
// real transfers. The diff detector cannot tell a corporate rename
// from a sale, so the call is made here, from the fraction columns:
// a rename moves nearly all of the seller's book and lands as most of
// the buyer's. Advisory only; rows are never mutated.
package classify

import "github.com/invertedv/msr/aggregate"

type Label string

const (
	Rebrand      Label = "rebrand"
	RealTransfer Label = "real_transfer"
)

// Thresholds are the minimum seller and buyer loan-count fractions
// for a rebrand call.
type Thresholds struct {
	SellerN float64
	BuyerN  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{SellerN: 0.90, BuyerN: 0.70}
}

// Label classifies one row. A row missing either fraction cannot
// establish a rebrand and is labeled a real transfer.
func (t Thresholds) Label(r aggregate.Row) Label {
	if r.FracSellerN == nil || r.FracBuyerN == nil {
		return RealTransfer
	}
	if *r.FracSellerN > t.SellerN && *r.FracBuyerN > t.BuyerN {
		return Rebrand
	}
	return RealTransfer
}

// Labeled pairs a row with its label.
type Labeled struct {
	aggregate.Row
	Label Label
}

// Apply labels every row, leaving the originals untouched.
func (t Thresholds) Apply(rows []aggregate.Row) []Labeled {
	out := make([]Labeled, len(rows))
	for i, r := range rows {
		out[i] = Labeled{Row: r, Label: t.Label(r)}
	}
	return out
}

// Transfers returns only the rows labeled as real transfers, the
// view the downstream sale analysis consumes.
func (t Thresholds) Transfers(rows []aggregate.Row) []aggregate.Row {
	var out []aggregate.Row
	for _, r := range rows {
		if t.Label(r) == RealTransfer {
			out = append(out, r)
		}
	}
	return out
}
