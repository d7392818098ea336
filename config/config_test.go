package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/invertedv/msr/aggregate"
	"github.com/invertedv/msr/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodYAML = `
agencies:
  - name: mlld
    regime: diff
    table: umbs.fnmMlld
    from: "201906"
    to: "202602"
    outCSV: output/mlld.csv
    outTable: umbs.mlldTransfers
  - name: gnma
    regime: flag
    table: gnma.llmon
    from: "201504"
    to: "202602"
    columns:
      id: concat(poolId, '|', lnId)
      servicer: issuerId
      seller: sellerIssuerId
    issuerTable: gnma.issuers
    outCSV: output/gnma.csv
`

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "msr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(write(t, goodYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Agencies, 2)

	mlld := cfg.Agencies[0]
	regime, err := mlld.ParsedRegime()
	require.NoError(t, err)
	assert.Equal(t, aggregate.Diff, regime)

	months, err := mlld.MonthRange()
	require.NoError(t, err)
	assert.Equal(t, portfolio.Month(201906), months[0])
	assert.Equal(t, portfolio.Month(202602), months[len(months)-1])
	assert.Len(t, months, 81)

	gnma := cfg.Agencies[1]
	regime, err = gnma.ParsedRegime()
	require.NoError(t, err)
	assert.Equal(t, aggregate.Flag, regime)

	cols := gnma.SourceColumns()
	assert.Equal(t, "concat(poolId, '|', lnId)", cols.ID)
	assert.Equal(t, "issuerId", cols.Servicer)
	assert.Equal(t, "sellerIssuerId", cols.Seller)
	// unset columns keep defaults
	assert.Equal(t, "toFloat64(upb)", cols.UPB)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no agencies", `agencies: []`},
		{"bad regime", `
agencies:
  - {name: x, regime: stream, table: t, from: "202501", to: "202502", outCSV: o.csv}`},
		{"no table", `
agencies:
  - {name: x, regime: diff, from: "202501", to: "202502", outCSV: o.csv}`},
		{"no outCSV", `
agencies:
  - {name: x, regime: diff, table: t, from: "202501", to: "202502"}`},
		{"bad month", `
agencies:
  - {name: x, regime: diff, table: t, from: "202513", to: "202602", outCSV: o.csv}`},
		{"reversed range", `
agencies:
  - {name: x, regime: diff, table: t, from: "202502", to: "202501", outCSV: o.csv}`},
		{"duplicate name", `
agencies:
  - {name: x, regime: diff, table: t, from: "202501", to: "202502", outCSV: o.csv}
  - {name: x, regime: diff, table: t, from: "202501", to: "202502", outCSV: o.csv}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(write(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
