package portfolio

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable(202501, []Loan{
		{ID: "1", Servicer: "a", UPB: d("100")},
		{ID: "1", Servicer: "a", UPB: d("100")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate loan id")
}

func TestNewDedupedKeepsFirst(t *testing.T) {
	tbl := NewDeduped(201504, []Loan{
		{ID: "p1|1", Servicer: "1234", UPB: d("100.50")},
		{ID: "p1|1", Servicer: "9999", UPB: d("1")},
		{ID: "p1|2", Servicer: "1234", UPB: d("200")},
	})
	require.Len(t, tbl.Loans, 2)
	assert.Equal(t, "1234", tbl.Loans[0].Servicer)
	assert.True(t, tbl.Loans[0].UPB.Equal(d("100.50")))
}

func TestServicerTotals(t *testing.T) {
	tbl, err := NewTable(202501, []Loan{
		{ID: "1", Servicer: "a", UPB: d("100.25")},
		{ID: "2", Servicer: "a", UPB: d("200.25")},
		{ID: "3", Servicer: "b", UPB: d("50")},
	})
	require.NoError(t, err)

	tot := tbl.ServicerTotals()
	require.Len(t, tot, 2)
	assert.Equal(t, int64(2), tot["a"].NLoans)
	assert.True(t, tot["a"].UPB.Equal(d("300.50")))
	assert.Equal(t, int64(1), tot["b"].NLoans)
	assert.True(t, tot["b"].UPB.Equal(d("50")))
}

func TestHistoryLookup(t *testing.T) {
	h := NewHistory()
	h.Add(202501, map[string]Totals{"a": {NLoans: 2, UPB: d("300")}})

	got, ok := h.Get("a", 202501)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.NLoans)

	_, ok = h.Get("a", 202502)
	assert.False(t, ok)
	_, ok = h.Get("b", 202501)
	assert.False(t, ok)
}
