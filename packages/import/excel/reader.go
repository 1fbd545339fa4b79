// Package excel reads spreadsheet test-case sources and converts their rows
// into test cases.
package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet is the raw content of one visible worksheet. Rows[0] is the header.
type Sheet struct {
	Name string
	Rows [][]string
}

// Load reads every visible worksheet of the workbook at path
func Load(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		visible, err := f.GetSheetVisible(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		if !visible {
			continue
		}

		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		sheets = append(sheets, Sheet{Name: name, Rows: rows})
	}
	return sheets, nil
}
