// Package issuer resolves GNMA issuer IDs to names. Names come from
// two places: a monthly issuer table and fixed-width cutoff records.
// Cutoff records are newer and overwrite table names, so load the
// table first.
package issuer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/invertedv/chutils"
)

// cutoff record layout: 4-char issuer ID, 56-char issuer name.
const (
	cutoffIDWidth   = 4
	cutoffNameWidth = 56
)

// Directory is the issuer ID → name lookup.
type Directory struct {
	names map[string]string
}

func NewDirectory() *Directory {
	return &Directory{names: make(map[string]string)}
}

// Name resolves an issuer ID, falling back to "ID:<id>" for issuers
// absent from every source so unknown IDs stay visible in output.
func (d *Directory) Name(id string) string {
	if n, ok := d.names[id]; ok {
		return n
	}
	return "ID:" + id
}

func (d *Directory) Len() int { return len(d.names) }

// Put records one id → name pair, overwriting any earlier name.
func (d *Directory) Put(id, name string) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return
	}
	d.names[id] = name
}

const qryIssuers = `
SELECT
  issuerId,
  issuerName
FROM
  sourceTable
ORDER BY issuerId
`

// LoadTable merges id → name pairs from a ClickHouse issuer table.
func (d *Directory) LoadTable(con *chutils.Connect, table string) error {
	rows, err := con.Query(strings.Replace(qryIssuers, "sourceTable", table, 1))
	if err != nil {
		return fmt.Errorf("issuer table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, name string
		if e := rows.Scan(&id, &name); e != nil {
			return fmt.Errorf("issuer table %s: %w", table, e)
		}
		d.Put(id, name)
	}
	if e := rows.Err(); e != nil {
		return fmt.Errorf("issuer table %s: %w", table, e)
	}
	return nil
}

// LoadCutoff merges id → name pairs from one fixed-width cutoff file.
func (d *Directory) LoadCutoff(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("issuer cutoff %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scn := bufio.NewScanner(f)
	for scn.Scan() {
		line := scn.Text()
		if len(line) < cutoffIDWidth {
			continue
		}
		id := line[:cutoffIDWidth]
		name := line[cutoffIDWidth:]
		if len(name) > cutoffNameWidth {
			name = name[:cutoffNameWidth]
		}
		d.Put(id, name)
	}
	if e := scn.Err(); e != nil {
		return fmt.Errorf("issuer cutoff %s: %w", path, e)
	}
	return nil
}
