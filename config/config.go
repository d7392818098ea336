// Package config reads the run configuration: which agencies to
// process, where their monthly tables live, and where output goes.
package config

import (
	"fmt"
	"os"

	"github.com/invertedv/msr/aggregate"
	"github.com/invertedv/msr/portfolio"
	"gopkg.in/yaml.v3"
)

// Columns overrides the select expressions for a monthly table.
// Empty fields fall back to the conventional-agency defaults.
type Columns struct {
	ID       string `yaml:"id"`
	Servicer string `yaml:"servicer"`
	Seller   string `yaml:"seller"`
	UPB      string `yaml:"upb"`
	Month    string `yaml:"month"`
}

// Agency configures one agency's run.
type Agency struct {
	Name   string  `yaml:"name"`
	Regime string  `yaml:"regime"` // diff or flag
	Table  string  `yaml:"table"`
	From   string  `yaml:"from"` // YYYYMM
	To     string  `yaml:"to"`   // YYYYMM
	Cols   Columns `yaml:"columns"`
	// flag regime only
	IssuerTable     string `yaml:"issuerTable"`
	IssuerCutoffDir string `yaml:"issuerCutoffDir"`

	OutCSV   string `yaml:"outCSV"`
	OutTable string `yaml:"outTable"` // empty skips the ClickHouse load
}

type Config struct {
	Agencies []Agency `yaml:"agencies"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Agencies) == 0 {
		return fmt.Errorf("no agencies configured")
	}
	seen := make(map[string]bool)
	for i := range c.Agencies {
		a := &c.Agencies[i]
		if a.Name == "" {
			return fmt.Errorf("agency %d: no name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agency %s: configured twice", a.Name)
		}
		seen[a.Name] = true
		if _, err := a.ParsedRegime(); err != nil {
			return fmt.Errorf("agency %s: %w", a.Name, err)
		}
		if a.Table == "" {
			return fmt.Errorf("agency %s: no table", a.Name)
		}
		if a.OutCSV == "" {
			return fmt.Errorf("agency %s: no outCSV", a.Name)
		}
		if _, err := a.MonthRange(); err != nil {
			return fmt.Errorf("agency %s: %w", a.Name, err)
		}
	}
	return nil
}

func (a *Agency) ParsedRegime() (aggregate.Regime, error) {
	return aggregate.ParseRegime(a.Regime)
}

// MonthRange expands from..to into the month list for the run.
func (a *Agency) MonthRange() ([]portfolio.Month, error) {
	from, err := portfolio.ParseMonth(a.From)
	if err != nil {
		return nil, err
	}
	to, err := portfolio.ParseMonth(a.To)
	if err != nil {
		return nil, err
	}
	return portfolio.MonthRange(from, to)
}

// SourceColumns maps the config overrides onto the defaults.
func (a *Agency) SourceColumns() portfolio.Columns {
	cols := portfolio.DefaultColumns()
	if a.Cols.ID != "" {
		cols.ID = a.Cols.ID
	}
	if a.Cols.Servicer != "" {
		cols.Servicer = a.Cols.Servicer
	}
	if a.Cols.Seller != "" {
		cols.Seller = a.Cols.Seller
	}
	if a.Cols.UPB != "" {
		cols.UPB = a.Cols.UPB
	}
	if a.Cols.Month != "" {
		cols.Month = a.Cols.Month
	}
	return cols
}
