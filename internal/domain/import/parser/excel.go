package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/sniffer"
)

// preferredSheets are tried, case-insensitively, before falling back to the first sheet
var preferredSheets = []string{"plan", "plans", "bütçe", "butce", "budget", "import", "data", "sheet1", "sayfa1"}

// ParseXLSX reads an XLSX workbook. Pivot layouts are tried first; anything
// else is read as rows with the same columns as CSV.
func (p *Parser) ParseXLSX(r io.Reader) (*Result, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &budget.ParseError{Format: "xlsx", Message: "failed to open Excel file", Err: err}
	}
	defer f.Close()

	sheet := pickSheet(f.GetSheetList())
	if sheet == "" {
		return nil, &budget.ParseError{Format: "xlsx", Message: "no suitable sheet found"}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &budget.ParseError{Format: "xlsx", Message: fmt.Sprintf("failed to read sheet %s", sheet), Err: err}
	}
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	return p.parseSheet("xlsx", rows, date1904)
}

// ParseXLS reads a legacy BIFF workbook from its first sheet
func (p *Parser) ParseXLS(r io.ReadSeeker) (*Result, error) {
	wb, err := xls.OpenReader(r, "utf-8")
	if err != nil {
		return nil, &budget.ParseError{Format: "xls", Message: "failed to open Excel file", Err: err}
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, &budget.ParseError{Format: "xls", Message: "no sheets found"}
	}

	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return p.parseSheet("xls", rows, false)
}

func (p *Parser) parseSheet(format string, rows [][]string, date1904 bool) (*Result, error) {
	records, err := p.ParsePivot(rows)
	if err == nil {
		return &Result{Format: format, Layout: LayoutPivot, Records: records}, nil
	}
	if !errors.Is(err, ErrNotPivot) {
		return nil, err
	}

	headerIdx := p.findHeaderRow(rows)
	if headerIdx < 0 {
		return &Result{Format: format, Layout: LayoutRows}, nil
	}
	headers := trimHeaders(rows[headerIdx])

	dateColumns := make(map[string]bool)
	for _, h := range headers {
		if field, ok := p.aliases.Field(h); ok && field == alias.FieldDate {
			dateColumns[h] = true
		}
	}
	convert := func(header, value string) any {
		if !dateColumns[header] {
			return value
		}
		serial, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return value
		}
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return value
		}
		return t
	}

	return &Result{
		Format:      format,
		Layout:      LayoutRows,
		Headers:     headers,
		Fingerprint: sniffer.Fingerprint(headers),
		Records:     rowsToRecords(p.aliases, headers, rows[headerIdx+1:], headerIdx+2, convert),
	}, nil
}

// findHeaderRow returns the first row naming a known field, else the first non-empty row
func (p *Parser) findHeaderRow(rows [][]string) int {
	firstNonEmpty := -1
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if firstNonEmpty < 0 {
				firstNonEmpty = i
			}
			if _, ok := p.aliases.Field(cell); ok {
				return i
			}
		}
	}
	return firstNonEmpty
}

func pickSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.EqualFold(strings.TrimSpace(sheet), preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}
