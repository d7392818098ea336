// Package store materializes the summary CSV into a ClickHouse table
// so downstream analysis can query it next to the monthly tables.
package store

import (
	"fmt"
	"os"
	"time"

	"github.com/invertedv/chutils"
	"github.com/invertedv/chutils/file"
	s "github.com/invertedv/chutils/sql"
)

// TableDef is the schema of the summary table. Field order matches
// the CSV column order. extended adds the raw issuer-ID columns the
// flag-regime agency carries.
func TableDef(extended bool) *chutils.TableDef {
	var (
		nameMiss = "unknown"
		idMiss   = "!"
		missDt   = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

		nLoansMin, nLoansMax, nLoansMiss = int32(1), int32(100000000), int32(-1)
		upbMin, upbMax, upbMiss          = float64(0.0), float64(1.0e12), float64(-1.0)
		fracMiss                         = float64(-1.0)
	)

	fds := make(map[int]*chutils.FieldDef)
	ind := 0
	add := func(fd *chutils.FieldDef) {
		fds[ind] = fd
		ind++
	}

	if extended {
		add(&chutils.FieldDef{
			Name:        "sellerIssuerId",
			ChSpec:      chutils.ChField{Base: chutils.ChString, Funcs: chutils.OuterFuncs{chutils.OuterLowCardinality}},
			Description: "issuer id of the seller, missing=" + idMiss,
			Legal:       chutils.NewLegalValues(),
			Missing:     idMiss,
		})
	}
	add(&chutils.FieldDef{
		Name:        "servicerFrom",
		ChSpec:      chutils.ChField{Base: chutils.ChString, Funcs: chutils.OuterFuncs{chutils.OuterLowCardinality}},
		Description: "servicer the loans moved from, missing=" + nameMiss,
		Legal:       chutils.NewLegalValues(),
		Missing:     nameMiss,
	})
	if extended {
		add(&chutils.FieldDef{
			Name:        "issuerId",
			ChSpec:      chutils.ChField{Base: chutils.ChString, Funcs: chutils.OuterFuncs{chutils.OuterLowCardinality}},
			Description: "issuer id of the buyer, missing=" + idMiss,
			Legal:       chutils.NewLegalValues(),
			Missing:     idMiss,
		})
	}
	add(&chutils.FieldDef{
		Name:        "servicerTo",
		ChSpec:      chutils.ChField{Base: chutils.ChString, Funcs: chutils.OuterFuncs{chutils.OuterLowCardinality}},
		Description: "servicer the loans moved to, missing=" + nameMiss,
		Legal:       chutils.NewLegalValues(),
		Missing:     nameMiss,
	})
	add(&chutils.FieldDef{
		Name:        "month",
		ChSpec:      chutils.ChField{Base: chutils.ChDate, Format: "200601"},
		Description: "transition month: first month the new servicer is observed",
		Legal:       chutils.NewLegalValues(),
		Missing:     missDt,
	})
	add(&chutils.FieldDef{
		Name:        "nLoans",
		ChSpec:      chutils.ChField{Base: chutils.ChInt, Length: 32},
		Description: "loans transferred, missing=" + fmt.Sprintf("%v", nLoansMiss),
		Legal:       &chutils.LegalValues{LowLimit: nLoansMin, HighLimit: nLoansMax},
		Missing:     nLoansMiss,
	})
	add(&chutils.FieldDef{
		Name:        "totalUpb",
		ChSpec:      chutils.ChField{Base: chutils.ChFloat, Length: 64},
		Description: "balance transferred (transition month), missing=" + fmt.Sprintf("%v", upbMiss),
		Legal:       &chutils.LegalValues{LowLimit: upbMin, HighLimit: upbMax},
		Missing:     upbMiss,
	})
	for _, f := range []struct{ name, desc string }{
		{"fracSellerN", "share of the seller's loan count"},
		{"fracSellerUpb", "share of the seller's balance"},
		{"fracBuyerN", "share of the buyer's loan count"},
		{"fracBuyerUpb", "share of the buyer's balance"},
	} {
		add(&chutils.FieldDef{
			Name:        f.name,
			ChSpec:      chutils.ChField{Base: chutils.ChFloat, Length: 64},
			Description: f.desc + ", missing=" + fmt.Sprintf("%v", fracMiss),
			Legal:       chutils.NewLegalValues(),
			Missing:     fracMiss,
		})
	}

	return chutils.NewTableDef("servicerFrom, servicerTo, month", chutils.MergeTree, fds)
}

// Load creates table and fills it from the summary CSV csvFile.
func Load(csvFile, table string, extended bool, nConcur int, con *chutils.Connect) (err error) {
	f, err := os.Open(csvFile)
	if err != nil {
		return err
	}
	rdr := file.NewReader(csvFile, ',', '\n', '"', 0, 0, 0, f, 6000000)
	rdr.Skip = 1 // header
	defer func() {
		if e := rdr.Close(); e != nil && err == nil {
			err = e
		}
	}()
	rdr.SetTableSpec(TableDef(extended))
	if e := rdr.TableSpec().Check(); e != nil {
		return e
	}
	if e := rdr.TableSpec().Create(con, table); e != nil {
		return e
	}

	rdrs, err := file.Rdrs(rdr, nConcur)
	if err != nil {
		return err
	}
	inputs := make([]chutils.Input, 0, len(rdrs))
	for _, r := range rdrs {
		inputs = append(inputs, r)
	}

	wrtrs, err := s.Wrtrs(table, nConcur, con)
	if err != nil {
		return err
	}

	return chutils.Concur(nConcur, inputs, wrtrs, 1000)
}
