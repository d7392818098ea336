package portfolio

import (
	"context"
	"fmt"
	"strings"

	"github.com/invertedv/chutils"
	"github.com/shopspring/decimal"
)

// Columns maps the select expressions for a monthly source table.
// Expressions, not bare names, so a composite key like
// concat(poolId, '|', lnId) works for GNMA.
type Columns struct {
	ID       string
	Servicer string
	Seller   string // empty when the table has no seller field
	UPB      string
	Month    string
}

// DefaultColumns matches the conventional-agency monthly tables.
func DefaultColumns() Columns {
	return Columns{
		ID:       "lnId",
		Servicer: "lower(servicer)",
		UPB:      "toFloat64(upb)",
		Month:    "month",
	}
}

// ChSource reads monthly portfolio tables from ClickHouse. One table
// holds all months for an agency, keyed by a month column.
type ChSource struct {
	Con   *chutils.Connect
	Table string
	Cols  Columns
	// Dedup keeps the first record per loan id instead of failing on
	// duplicates (GNMA's overlapping record streams).
	Dedup bool
}

const qryMonth = `
SELECT
  idExpr AS lnId,
  servicerExpr AS servicer,
  sellerExpr AS seller,
  upbExpr AS upb
FROM
  sourceTable
WHERE
  toYYYYMM(monthExpr) = yyyymm
ORDER BY lnId
`

func (src *ChSource) query(month Month) string {
	cols := src.Cols
	if cols.ID == "" {
		cols = DefaultColumns()
	}
	seller := cols.Seller
	if seller == "" {
		seller = "''"
	}
	q := strings.Replace(qryMonth, "idExpr", cols.ID, 1)
	q = strings.Replace(q, "servicerExpr", cols.Servicer, 1)
	q = strings.Replace(q, "sellerExpr", seller, 1)
	q = strings.Replace(q, "upbExpr", cols.UPB, 1)
	q = strings.Replace(q, "sourceTable", src.Table, 1)
	q = strings.Replace(q, "monthExpr", cols.Month, 1)
	return strings.Replace(q, "yyyymm", month.String(), 1)
}

// Load reads one month. An empty month is an input-contract
// violation: the table the ingestion process promised is missing.
func (src *ChSource) Load(ctx context.Context, month Month) (*Table, error) {
	if e := ctx.Err(); e != nil {
		return nil, e
	}
	rows, err := src.Con.Query(src.query(month))
	if err != nil {
		return nil, fmt.Errorf("%s month %s: %w", src.Table, month, err)
	}
	defer func() { _ = rows.Close() }()

	var loans []Loan
	for rows.Next() {
		var (
			id, servicer, seller string
			upb                  float64
		)
		if e := rows.Scan(&id, &servicer, &seller, &upb); e != nil {
			return nil, fmt.Errorf("%s month %s: %w", src.Table, month, e)
		}
		loans = append(loans, Loan{
			ID:       id,
			Servicer: servicer,
			Seller:   strings.TrimSpace(seller),
			UPB:      decimalFromUPB(upb),
		})
	}
	if e := rows.Err(); e != nil {
		return nil, fmt.Errorf("%s month %s: %w", src.Table, month, e)
	}
	if len(loans) == 0 {
		return nil, fmt.Errorf("%s month %s: no records", src.Table, month)
	}
	if src.Dedup {
		return NewDeduped(month, loans), nil
	}
	return NewTable(month, loans)
}

// decimalFromUPB pins a balance read as float to cents, so downstream
// sums are exact at currency precision.
func decimalFromUPB(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
