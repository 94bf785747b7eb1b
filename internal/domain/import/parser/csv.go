package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/sniffer"
)

// ParseCSV reads a delimited file. The delimiter and any preamble lines are
// detected; input that is not valid UTF-8 is decoded as Windows-1254, the
// usual encoding of Turkish spreadsheet exports.
func (p *Parser) ParseCSV(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1254.NewDecoder().Bytes(data)
		if err != nil {
			return nil, &budget.ParseError{Format: "csv", Message: "file is not UTF-8 or Windows-1254 encoded", Err: err}
		}
		data = decoded
	}

	cfg, err := sniffer.DetectConfig(data, p.aliases)
	if err != nil {
		return nil, &budget.ParseError{Format: "csv", Message: "could not detect header", Err: err}
	}

	lines := strings.Split(string(data), "\n")
	body := strings.Join(lines[cfg.SkipLines:], "\n")
	body = strings.TrimPrefix(body, "\uFEFF")

	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &budget.ParseError{Format: "csv", Message: "could not read header", Err: err}
	}
	headers := trimHeaders(header)

	result := &Result{
		Format:      "csv",
		Layout:      LayoutRows,
		Headers:     headers,
		Fingerprint: cfg.Fingerprint,
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &budget.ParseError{Format: "csv", Message: "malformed row", Err: err}
		}
		line, _ := reader.FieldPos(0)
		result.Records = append(result.Records, rowsToRecords(p.aliases, headers, [][]string{row}, cfg.SkipLines+line, nil)...)
	}
	return result, nil
}
