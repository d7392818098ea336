package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/invertedv/msr/aggregate"
	"github.com/invertedv/msr/portfolio"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memSource serves canned monthly tables.
type memSource struct {
	tables map[portfolio.Month][]portfolio.Loan
	dedup  bool
}

func (m *memSource) Load(_ context.Context, month portfolio.Month) (*portfolio.Table, error) {
	loans, ok := m.tables[month]
	if !ok {
		return nil, fmt.Errorf("month %s: no records", month)
	}
	if m.dedup {
		return portfolio.NewDeduped(month, loans), nil
	}
	return portfolio.NewTable(month, loans)
}

func diffSource() *memSource {
	return &memSource{tables: map[portfolio.Month][]portfolio.Loan{
		202501: {
			{ID: "1", Servicer: "a", UPB: d("100")},
			{ID: "2", Servicer: "a", UPB: d("200")},
			{ID: "3", Servicer: "b", UPB: d("300")},
		},
		202502: {
			{ID: "1", Servicer: "b", UPB: d("99")},
			{ID: "2", Servicer: "a", UPB: d("200")},
			{ID: "3", Servicer: "b", UPB: d("300")},
		},
		202503: {
			{ID: "1", Servicer: "b", UPB: d("98")},
			{ID: "2", Servicer: "a", UPB: d("200")},
			{ID: "3", Servicer: "b", UPB: d("299")},
		},
	}}
}

func TestRunDiff(t *testing.T) {
	rows, rpt, err := Run(context.Background(), Job{
		Agency:  "test",
		Regime:  aggregate.Diff,
		Source:  diffSource(),
		Months:  []portfolio.Month{202501, 202502, 202503},
		NConcur: 2,
	})
	require.NoError(t, err)

	// loan 1 moves a -> b in 202502 and then never moves again
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "a", r.From)
	assert.Equal(t, "b", r.To)
	assert.Equal(t, portfolio.Month(202502), r.Month)
	assert.Equal(t, int64(1), r.NLoans)
	assert.True(t, r.TotalUPB.Equal(d("99")))

	// seller a held 2 loans / 300 in 202501
	require.NotNil(t, r.FracSellerN)
	assert.InDelta(t, 0.5, *r.FracSellerN, 1e-12)
	require.NotNil(t, r.FracSellerUPB)
	assert.InDelta(t, 100.0/300.0, *r.FracSellerUPB, 1e-12)
	// buyer b holds 2 loans / 399 in 202502
	require.NotNil(t, r.FracBuyerN)
	assert.InDelta(t, 0.5, *r.FracBuyerN, 1e-12)
	require.NotNil(t, r.FracBuyerUPB)
	assert.InDelta(t, 99.0/399.0, *r.FracBuyerUPB, 1e-12)

	assert.Equal(t, 3, rpt.Months)
	assert.Equal(t, 1, rpt.Events)
	assert.Equal(t, 1, rpt.Rows)
	assert.Zero(t, rpt.DroppedSelfTransfers)
	assert.Zero(t, rpt.FracOverOne)
	assert.NotEmpty(t, rpt.RunID)
}

func TestRunDiffRejectsGappedMonths(t *testing.T) {
	_, _, err := Run(context.Background(), Job{
		Agency: "test",
		Regime: aggregate.Diff,
		Source: diffSource(),
		Months: []portfolio.Month{202501, 202503},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not consecutive")
}

func TestRunAbortsWhenAnyMonthFailsToLoad(t *testing.T) {
	src := diffSource()
	delete(src.tables, 202502)

	_, _, err := Run(context.Background(), Job{
		Agency: "test",
		Regime: aggregate.Diff,
		Source: src,
		Months: []portfolio.Month{202501, 202502, 202503},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "202502")
}

func TestRunFlag(t *testing.T) {
	src := &memSource{
		dedup: true,
		tables: map[portfolio.Month][]portfolio.Loan{
			201506: {
				{ID: "5", Servicer: "X", UPB: d("50")},
				{ID: "6", Servicer: "Y", Seller: "Z", UPB: d("75")},
			},
		},
	}
	rows, rpt, err := Run(context.Background(), Job{
		Agency: "gnma",
		Regime: aggregate.Flag,
		Source: src,
		Months: []portfolio.Month{201506},
	})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "Z", r.From)
	assert.Equal(t, "Y", r.To)
	assert.Equal(t, "Z", r.SellerID)
	assert.Equal(t, "Y", r.BuyerID)
	assert.Equal(t, int64(1), r.NLoans)
	assert.True(t, r.TotalUPB.Equal(d("75")))

	// seller Z has no remaining book: denominator is the transfer
	require.NotNil(t, r.FracSellerN)
	assert.InDelta(t, 1.0, *r.FracSellerN, 1e-12)
	// buyer Y holds only this loan in the month
	require.NotNil(t, r.FracBuyerN)
	assert.InDelta(t, 1.0, *r.FracBuyerN, 1e-12)

	assert.Equal(t, 1, rpt.Events)
}

func TestRunFlagCountsSelfTransfers(t *testing.T) {
	src := &memSource{
		dedup: true,
		tables: map[portfolio.Month][]portfolio.Loan{
			201506: {
				{ID: "6", Servicer: "Y", Seller: "Y", UPB: d("75")},
				{ID: "7", Servicer: "Y", Seller: "Z", UPB: d("25")},
			},
		},
	}
	rows, rpt, err := Run(context.Background(), Job{
		Agency: "gnma",
		Regime: aggregate.Flag,
		Source: src,
		Months: []portfolio.Month{201506},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rpt.DroppedSelfTransfers)
	assert.Equal(t, int64(1), rows[0].NLoans)
}

func TestRunIsIdempotent(t *testing.T) {
	job := Job{
		Agency:  "test",
		Regime:  aggregate.Diff,
		Source:  diffSource(),
		Months:  []portfolio.Month{202501, 202502, 202503},
		NConcur: 3,
	}

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "one.csv"), filepath.Join(dir, "two.csv")}
	for _, p := range paths {
		rows, _, err := Run(context.Background(), job)
		require.NoError(t, err)
		require.NoError(t, WriteCSVFile(p, rows, false))
	}

	one, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	two, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, one, two, "identical inputs must produce identical bytes")
}
