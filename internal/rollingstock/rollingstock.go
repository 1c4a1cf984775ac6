// Package rollingstock looks up train lengths per line from the rolling stock
// workbook (Model_Trains.xlsx).
package rollingstock

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	lineColumn   = "Linien"
	lengthColumn = "Total lz [m]"
)

var ErrUnknownLine = errors.New("unknown line")

// Catalog maps upper-cased line names to total train length in metres.
type Catalog struct {
	lengths map[string]float64
}

// Open reads every sheet of the workbook at path.
func Open(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rolling stock workbook: %w", err)
	}
	defer f.Close()
	return read(f)
}

// OpenReader reads a workbook from r.
func OpenReader(r io.Reader) (*Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open rolling stock workbook: %w", err)
	}
	defer f.Close()
	return read(f)
}

func read(f *excelize.File) (*Catalog, error) {
	c := &Catalog{lengths: make(map[string]float64)}
	for _, sheet := range f.GetSheetList() {
		if err := c.readSheet(f, sheet); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
	}
	return c, nil
}

// readSheet adds the sheet's lines. Sheets without both columns are skipped.
// A line listed on several sheets takes the length of the last one.
func (c *Catalog) readSheet(f *excelize.File, sheet string) error {
	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil
	}
	header, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	lineIdx, lengthIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case lineColumn:
			lineIdx = i
		case lengthColumn:
			lengthIdx = i
		}
	}
	if lineIdx < 0 || lengthIdx < 0 {
		return nil
	}

	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil || lineIdx >= len(cols) || lengthIdx >= len(cols) {
			continue
		}
		line := strings.ToUpper(strings.TrimSpace(cols[lineIdx]))
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(cols[lengthIdx]), ",", ".", 1), 64)
		if err != nil {
			continue
		}
		c.lengths[line] = math.Round(v*1e4) / 1e4
	}
	return nil
}

// TrainLength returns the total length in metres of the trains on line.
func (c *Catalog) TrainLength(line string) (float64, error) {
	v, ok := c.lengths[strings.ToUpper(strings.TrimSpace(line))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLine, line)
	}
	return v, nil
}

// Lines returns the number of lines known.
func (c *Catalog) Lines() int {
	return len(c.lengths)
}
