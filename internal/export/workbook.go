// Package export writes a StockRecord to an XLSX workbook for offline use.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockbrief/internal/logging"
	"stockbrief/internal/stock"

	"github.com/xuri/excelize/v2"
)

// Sheet names, in workbook order.
const (
	SheetSummary      = "Summary"
	SheetProsCons     = "Pros & Cons"
	SheetTables       = "Tables"
	SheetShareholding = "Shareholding"
	SheetCharts       = "Charts"
)

// Workbook renders rec as XLSX bytes. Sheets for absent optional blocks are
// left out.
func Workbook(rec *stock.StockRecord) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with "Sheet1"; rename it rather than leaving it empty.
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}

	writeSummary(f, rec)
	if err := writeProsCons(f, rec); err != nil {
		return nil, err
	}
	if len(rec.AllTables) > 0 {
		if err := writeTables(f, rec.AllTables); err != nil {
			return nil, err
		}
	}
	if len(rec.ShareholdingPattern) > 0 {
		if err := writeShareholding(f, rec.ShareholdingPattern); err != nil {
			return nil, err
		}
	}
	if rec.FinancialCharts != nil && len(rec.FinancialCharts.Series) > 0 {
		if err := writeCharts(f, rec.FinancialCharts); err != nil {
			return nil, err
		}
	}

	idx, _ := f.GetSheetIndex(SheetSummary)
	f.SetActiveSheet(idx)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logging.Action("Exported %s to xlsx (%d tables) in %v", rec.StockName, len(rec.AllTables), time.Since(start))
	return buf.Bytes(), nil
}

// WriteFile writes the workbook for rec to path.
func WriteFile(rec *stock.StockRecord, path string) error {
	data, err := Workbook(rec)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// FileName suggests a file name for rec, e.g. "acme-corp_2024-03-01.xlsx".
func FileName(rec *stock.StockRecord) string {
	base := "stock"
	switch {
	case !stock.IsMissing(rec.Symbol):
		base = rec.Symbol
	case !stock.IsMissing(rec.StockName):
		base = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(rec.StockName), " ", "-"))
	}
	day := time.Now().Format("2006-01-02")
	if t, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
		day = t.Format("2006-01-02")
	}
	return fmt.Sprintf("%s_%s.xlsx", base, day)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		_ = f.SetCellValue(sheet, cell(i+1, row), v)
	}
}

func writeSummary(f *excelize.File, rec *stock.StockRecord) {
	writeRow(f, SheetSummary, 1, "Field", "Value")
	row := 2
	for _, fld := range rec.Fields() {
		v, ok := fld.Value.(string)
		if !ok {
			continue
		}
		writeRow(f, SheetSummary, row, fld.Key, v)
		row++
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 20)
	_ = f.SetColWidth(SheetSummary, "B", "B", 80)
}

func writeProsCons(f *excelize.File, rec *stock.StockRecord) error {
	if _, err := f.NewSheet(SheetProsCons); err != nil {
		return err
	}
	writeRow(f, SheetProsCons, 1, "Pros", "Cons")
	for i, p := range rec.Pros {
		_ = f.SetCellValue(SheetProsCons, cell(1, i+2), p)
	}
	for i, c := range rec.Cons {
		_ = f.SetCellValue(SheetProsCons, cell(2, i+2), c)
	}
	_ = f.SetColWidth(SheetProsCons, "A", "B", 60)
	return nil
}

// writeTables stacks every table on one sheet, each under a "Table N"
// heading and separated by a blank row.
func writeTables(f *excelize.File, tables []stock.Table) error {
	if _, err := f.NewSheet(SheetTables); err != nil {
		return err
	}
	row := 1
	for _, t := range tables {
		writeRow(f, SheetTables, row, fmt.Sprintf("Table %d", t.TableIndex))
		row++
		for _, cells := range t.Rows {
			vals := make([]any, len(cells))
			for i, c := range cells {
				vals[i] = c
			}
			writeRow(f, SheetTables, row, vals...)
			row++
		}
		row++
	}
	return nil
}

func writeShareholding(f *excelize.File, holding map[string]string) error {
	if _, err := f.NewSheet(SheetShareholding); err != nil {
		return err
	}
	holders := make([]string, 0, len(holding))
	for k := range holding {
		holders = append(holders, k)
	}
	sort.Strings(holders)

	writeRow(f, SheetShareholding, 1, "Holder", "Share")
	for i, h := range holders {
		writeRow(f, SheetShareholding, i+2, h, holding[h])
	}
	_ = f.SetColWidth(SheetShareholding, "A", "A", 30)
	return nil
}

// writeCharts writes one date column plus a value column per series.
// Dates are taken from the first series that has them, in key order.
func writeCharts(f *excelize.File, charts *stock.FinancialCharts) error {
	if _, err := f.NewSheet(SheetCharts); err != nil {
		return err
	}
	keys := make([]string, 0, len(charts.Series))
	for k := range charts.Series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := []any{"Period"}
	for _, k := range keys {
		header = append(header, k)
	}
	writeRow(f, SheetCharts, 1, header...)

	rows := 0
	for _, k := range keys {
		if n := len(charts.Series[k].Dates); n > rows {
			rows = n
		}
	}
	for i := 0; i < rows; i++ {
		var period string
		vals := []any{nil}
		for _, k := range keys {
			s := charts.Series[k]
			if period == "" && i < len(s.Dates) {
				period = s.Dates[i]
			}
			if i < len(s.Values) {
				vals = append(vals, s.Values[i])
			} else {
				vals = append(vals, "")
			}
		}
		vals[0] = period
		writeRow(f, SheetCharts, i+2, vals...)
	}

	meta := charts.Metadata
	base := rows + 3
	writeRow(f, SheetCharts, base, "Unit", meta.Unit)
	writeRow(f, SheetCharts, base+1, "Period mode", meta.PeriodMode)
	writeRow(f, SheetCharts, base+2, "Captured", meta.ExtractedAt)
	return nil
}
