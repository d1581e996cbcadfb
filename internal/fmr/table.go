package fmr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ehutt/rent-radar/logger"
)

// ErrNotFound reports a reference-data gap: no fair-market rent exists for
// the requested zip code and bedroom count. Callers must treat this as a
// lookup failure, never as a zero rent.
var ErrNotFound = errors.New("fmr: no entry for zip/bedrooms")

type key struct {
	zip      string
	bedrooms int
}

// Table is an immutable (zip code, bedroom count) to fair-market-rent
// mapping loaded once per run.
type Table struct {
	entries map[key]decimal.Decimal
}

// bedroomColumns maps recognized header spellings to a bedroom count.
// HUD publishes both "SAFMR 2BR" and spelled-out column names.
var bedroomColumns = map[string]int{
	"efficiency":    0,
	"studio":        0,
	"0br":           0,
	"one-bedroom":   1,
	"1br":           1,
	"two-bedroom":   2,
	"2br":           2,
	"three-bedroom": 3,
	"3br":           3,
	"four-bedroom":  4,
	"4br":           4,
}

var numericRe = regexp.MustCompile(`[\d.]+`)

// Load reads a SAFMR CSV file. The header must name a zip-code column and
// one column per bedroom count; rent values may be plain numbers or
// currency strings such as "$2,500".
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fmr: open reference file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("fmr: read header: %w", err)
	}

	zipCol := -1
	rentCols := make(map[int]int) // column index -> bedroom count
	for i, name := range header {
		norm := strings.ToLower(strings.TrimSpace(name))
		if strings.Contains(norm, "zip") {
			zipCol = i
			continue
		}
		for pattern, bedrooms := range bedroomColumns {
			if strings.Contains(norm, pattern) {
				rentCols[i] = bedrooms
				break
			}
		}
	}
	if zipCol < 0 {
		return nil, fmt.Errorf("fmr: no zip code column in header %v", header)
	}
	if len(rentCols) == 0 {
		return nil, fmt.Errorf("fmr: no bedroom rent columns in header %v", header)
	}

	log := logger.GetLogger().WithComponent("fmr_table")

	t := &Table{entries: make(map[key]decimal.Decimal)}
	rows := 0
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if zipCol >= len(record) {
			continue
		}
		zip := strings.TrimSpace(record[zipCol])
		if zip == "" {
			continue
		}
		rows++
		for col, bedrooms := range rentCols {
			if col >= len(record) {
				continue
			}
			value, ok := parseCurrency(record[col])
			if !ok {
				log.WithFields(logger.Fields{
					"zip":      zip,
					"bedrooms": bedrooms,
					"raw":      record[col],
				}).Debug("skipping unparseable rent value")
				continue
			}
			t.entries[key{zip: zip, bedrooms: bedrooms}] = value
		}
	}

	log.WithFields(logger.Fields{
		"path":    path,
		"rows":    rows,
		"entries": len(t.entries),
	}).Info("fmr reference table loaded")

	return t, nil
}

// Lookup returns the fair-market rent for an exact (zip, bedrooms) pair.
// There is no interpolation across zip codes or bedroom counts.
func (t *Table) Lookup(zip string, bedrooms int) (decimal.Decimal, error) {
	v, ok := t.entries[key{zip: strings.TrimSpace(zip), bedrooms: bedrooms}]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: zip=%s bedrooms=%d", ErrNotFound, zip, bedrooms)
	}
	return v, nil
}

// Len returns the number of loaded entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// parseCurrency extracts a positive decimal from a raw rent cell,
// tolerating dollar signs, thousands separators and surrounding noise.
func parseCurrency(raw string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	match := numericRe.FindString(cleaned)
	if match == "" || match == "." {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(match)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
