// Package excel renders the first worksheet of an uploaded .xlsx file as CSV
// so the rest of the import pipeline stays format agnostic.
package excel

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// xlsx files are zip archives; the PK signature is a cheap first gate before
// excelize does the workbook probe.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// IsWorkbook reports whether the uploaded bytes look like an .xlsx workbook.
func IsWorkbook(data []byte) bool {
	if !bytes.HasPrefix(data, zipMagic) {
		return false
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	defer f.Close()
	return len(f.GetSheetList()) > 0
}

// SheetRows returns every row of the first sheet as string cells.
func SheetRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// ToCSV converts an .xlsx upload into semicolon separated CSV bytes. Rows keep
// their cell order; trailing empty cells from excelize are preserved as empty
// fields.
func ToCSV(data []byte) ([]byte, error) {
	rows, err := SheetRows(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
