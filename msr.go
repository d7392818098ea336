// Command msr detects mortgage servicing-rights transfers in monthly
// loan-level datasets and writes one summary CSV (and optionally a
// ClickHouse table) per agency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/invertedv/chutils"
	"github.com/invertedv/msr/aggregate"
	"github.com/invertedv/msr/config"
	"github.com/invertedv/msr/detect"
	"github.com/invertedv/msr/issuer"
	"github.com/invertedv/msr/pipeline"
	"github.com/invertedv/msr/portfolio"
	"github.com/invertedv/msr/store"
	"go.uber.org/zap"
)

func main() {
	host := flag.String("host", "127.0.0.1", "string")
	user := flag.String("user", "default", "string")
	password := flag.String("password", "", "string")
	cfgFile := flag.String("config", "msr.yaml", "string")
	agency := flag.String("agency", "", "string") // empty runs all
	nConcur := flag.Int("concur", 4, "int")
	maxMemory := flag.Int64("memory", 40000000000, "int64")
	maxGroupby := flag.Int64("groupby", 20000000000, "int64")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		lg.Fatal("config", zap.Error(err))
	}

	con, err := chutils.NewConnect(*host, *user, *password, clickhouse.Settings{
		"max_memory_usage":                   *maxMemory,
		"max_bytes_before_external_group_by": *maxGroupby,
	})
	if err != nil {
		lg.Fatal("clickhouse connect", zap.Error(err))
	}
	defer func() {
		if e := con.Close(); e != nil {
			lg.Error("clickhouse close", zap.Error(e))
		}
	}()

	ctx := context.Background()
	for _, a := range cfg.Agencies {
		if *agency != "" && a.Name != *agency {
			continue
		}
		s := time.Now()
		if e := runAgency(ctx, a, con, *nConcur, lg); e != nil {
			lg.Fatal("agency run", zap.String("agency", a.Name), zap.Error(e))
		}
		lg.Info("agency done", zap.String("agency", a.Name), zap.Duration("took", time.Since(s)))
	}
}

func runAgency(ctx context.Context, a config.Agency, con *chutils.Connect, nConcur int, lg *zap.Logger) error {
	regime, err := a.ParsedRegime()
	if err != nil {
		return err
	}
	months, err := a.MonthRange()
	if err != nil {
		return err
	}

	var names detect.NameResolver
	extended := regime == aggregate.Flag
	if extended {
		if names, err = loadIssuers(a, con, lg); err != nil {
			return err
		}
	}

	src := &portfolio.ChSource{
		Con:   con,
		Table: a.Table,
		Cols:  a.SourceColumns(),
		Dedup: extended,
	}
	rows, rpt, err := pipeline.Run(ctx, pipeline.Job{
		Agency:  a.Name,
		Regime:  regime,
		Source:  src,
		Months:  months,
		Names:   names,
		NConcur: nConcur,
		Logger:  lg,
	})
	if err != nil {
		return err
	}

	if err = pipeline.WriteCSVFile(a.OutCSV, rows, extended); err != nil {
		return err
	}
	lg.Info("wrote summary csv",
		zap.String("agency", a.Name),
		zap.String("file", a.OutCSV),
		zap.Int("rows", rpt.Rows))

	if a.OutTable != "" {
		if err = store.Load(a.OutCSV, a.OutTable, extended, nConcur, con); err != nil {
			return err
		}
		lg.Info("loaded summary table", zap.String("agency", a.Name), zap.String("table", a.OutTable))
	}
	return nil
}

// loadIssuers builds the issuer directory: table names first, then
// cutoff files in name order so newer cutoffs overwrite.
func loadIssuers(a config.Agency, con *chutils.Connect, lg *zap.Logger) (*issuer.Directory, error) {
	dir := issuer.NewDirectory()
	if a.IssuerTable != "" {
		if err := dir.LoadTable(con, a.IssuerTable); err != nil {
			return nil, err
		}
	}
	if a.IssuerCutoffDir != "" {
		files, err := filepath.Glob(filepath.Join(a.IssuerCutoffDir, "*"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, f := range files {
			if err := dir.LoadCutoff(f); err != nil {
				return nil, err
			}
		}
	}
	lg.Info("issuer directory", zap.String("agency", a.Name), zap.Int("issuers", dir.Len()))
	return dir, nil
}
