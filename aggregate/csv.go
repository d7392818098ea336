package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var (
	csvHeader = []string{
		"servicer_from", "servicer_to", "transition_month",
		"n_loans", "total_upb",
		"frac_seller_n", "frac_seller_upb", "frac_buyer_n", "frac_buyer_upb",
	}
	// The flag-regime agency identifies servicers by numeric issuer
	// ID; the raw IDs ride along next to the resolved names.
	csvHeaderExtended = []string{
		"seller_issuer_id", "servicer_from", "issuer_id", "servicer_to",
		"transition_month", "n_loans", "total_upb",
		"frac_seller_n", "frac_seller_upb", "frac_buyer_n", "frac_buyer_upb",
	}
)

// WriteCSV writes the summary table. Call Sort first; this function
// writes rows in the order given. Null fractions become empty cells.
func WriteCSV(w io.Writer, rows []Row, extended bool) error {
	cw := csv.NewWriter(w)

	hdr := csvHeader
	if extended {
		hdr = csvHeaderExtended
	}
	if err := cw.Write(hdr); err != nil {
		return fmt.Errorf("summary csv: %w", err)
	}

	for _, r := range rows {
		rec := make([]string, 0, len(hdr))
		if extended {
			rec = append(rec, r.SellerID)
		}
		rec = append(rec, r.From)
		if extended {
			rec = append(rec, r.BuyerID)
		}
		rec = append(rec,
			r.To,
			r.Month.String(),
			strconv.FormatInt(r.NLoans, 10),
			r.TotalUPB.String(),
			fracCell(r.FracSellerN),
			fracCell(r.FracSellerUPB),
			fracCell(r.FracBuyerN),
			fracCell(r.FracBuyerUPB),
		)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("summary csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("summary csv: %w", err)
	}
	return nil
}

// fracCell renders a fraction in plain decimal form, never exponent
// notation, so tiny shares of a large book stay readable in the CSV.
func fracCell(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
