// Package pipeline runs one agency's detection end to end: load the
// monthly tables, detect transfers, aggregate, annotate fractions,
// and write the summary. Periods are independent, so they run on a
// bounded worker group; results merge single-writer after every
// worker finishes, and any load failure cancels the whole run; a
// partial summary table would be misleading.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/invertedv/msr/aggregate"
	"github.com/invertedv/msr/detect"
	"github.com/invertedv/msr/portfolio"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is one agency's run.
type Job struct {
	Agency  string
	Regime  aggregate.Regime
	Source  portfolio.Source
	Months  []portfolio.Month
	Names   detect.NameResolver // flag regime only; nil keeps raw IDs
	NConcur int
	Logger  *zap.Logger
}

// Report summarizes a completed run.
type Report struct {
	RunID  string
	Agency string
	Months int
	Events int
	Rows   int

	// DroppedSelfTransfers counts detector-contract violations
	// (seller == buyer) rejected at aggregation.
	DroppedSelfTransfers int

	// FracOverOne counts fractions above 1, surfaced as a
	// data-quality signal, never clamped.
	FracOverOne int

	TotalUPB decimal.Decimal
}

// Run executes the job and returns sorted summary rows.
func Run(ctx context.Context, job Job) ([]aggregate.Row, *Report, error) {
	if job.NConcur < 1 {
		job.NConcur = 1
	}
	lg := job.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	runID := uuid.NewString()
	lg = lg.With(zap.String("run", runID), zap.String("agency", job.Agency))

	var (
		events []detect.Event
		hist   *portfolio.History
		err    error
	)
	switch job.Regime {
	case aggregate.Diff:
		events, hist, err = runDiff(ctx, job, lg)
	case aggregate.Flag:
		events, hist, err = runFlag(ctx, job, lg)
	default:
		err = fmt.Errorf("agency %s: unknown regime", job.Agency)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, dropped, err := aggregate.Rows(events)
	if err != nil {
		return nil, nil, fmt.Errorf("agency %s: %w", job.Agency, err)
	}
	if dropped > 0 {
		lg.Warn("dropped self-transfer events", zap.Int("events", dropped))
	}
	overOne := aggregate.Annotate(rows, hist, job.Regime)
	if overOne > 0 {
		lg.Warn("fractions above 1", zap.Int("fractions", overOne))
	}
	aggregate.Sort(rows)

	rpt := &Report{
		RunID:                runID,
		Agency:               job.Agency,
		Months:               len(job.Months),
		Events:               len(events),
		Rows:                 len(rows),
		DroppedSelfTransfers: dropped,
		FracOverOne:          overOne,
	}
	for _, r := range rows {
		rpt.TotalUPB = rpt.TotalUPB.Add(r.TotalUPB)
	}
	lg.Info("run complete",
		zap.Int("months", rpt.Months),
		zap.Int("events", rpt.Events),
		zap.Int("rows", rpt.Rows),
		zap.String("totalUpb", rpt.TotalUPB.String()))
	return rows, rpt, nil
}

// loadAll fetches every month concurrently. Index i of the result
// holds month i, so downstream pair-walks stay in calendar order no
// matter which worker finished first.
func loadAll(ctx context.Context, job Job, lg *zap.Logger) ([]*portfolio.Table, error) {
	tables := make([]*portfolio.Table, len(job.Months))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(job.NConcur)
	for i, m := range job.Months {
		i, m := i, m
		g.Go(func() error {
			tbl, e := job.Source.Load(ctx, m)
			if e != nil {
				return fmt.Errorf("agency %s: %w", job.Agency, e)
			}
			lg.Info("loaded month", zap.String("month", m.String()), zap.Int("loans", len(tbl.Loans)))
			tables[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func runDiff(ctx context.Context, job Job, lg *zap.Logger) ([]detect.Event, *portfolio.History, error) {
	if err := portfolio.CheckConsecutive(job.Months); err != nil {
		return nil, nil, fmt.Errorf("agency %s: %w", job.Agency, err)
	}
	tables, err := loadAll(ctx, job, lg)
	if err != nil {
		return nil, nil, err
	}

	hist := portfolio.NewHistory()
	for _, tbl := range tables {
		hist.Add(tbl.Month, tbl.ServicerTotals())
	}

	// one comparison per adjacent pair; perPair[i] covers months i, i+1
	perPair := make([][]detect.Event, len(tables)-1)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(job.NConcur)
	for i := 0; i < len(tables)-1; i++ {
		i := i
		g.Go(func() error {
			evts, e := detect.Diff(tables[i], tables[i+1])
			if e != nil {
				return fmt.Errorf("agency %s: %w", job.Agency, e)
			}
			lg.Info("compared pair",
				zap.String("prev", tables[i].Month.String()),
				zap.String("curr", tables[i+1].Month.String()),
				zap.Int("changed", len(evts)))
			perPair[i] = evts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var events []detect.Event
	for _, evts := range perPair {
		events = append(events, evts...)
	}
	return events, hist, nil
}

func runFlag(ctx context.Context, job Job, lg *zap.Logger) ([]detect.Event, *portfolio.History, error) {
	if err := portfolio.CheckAscending(job.Months); err != nil {
		return nil, nil, fmt.Errorf("agency %s: %w", job.Agency, err)
	}
	tables, err := loadAll(ctx, job, lg)
	if err != nil {
		return nil, nil, err
	}

	hist := portfolio.NewHistory()
	perMonth := make([][]detect.Event, len(tables))
	for i, tbl := range tables {
		hist.Add(tbl.Month, tbl.ServicerTotals())
		perMonth[i] = detect.Flag(tbl, job.Names)
		lg.Info("scanned month",
			zap.String("month", tbl.Month.String()),
			zap.Int("transfers", len(perMonth[i])))
	}

	var events []detect.Event
	for _, evts := range perMonth {
		events = append(events, evts...)
	}
	return events, hist, nil
}

// WriteCSVFile writes the sorted rows to path, creating parent
// directories. Re-running on identical inputs rewrites identical
// bytes.
func WriteCSVFile(path string, rows []aggregate.Row, extended bool) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return aggregate.WriteCSV(f, rows, extended)
}
