// Package parser reads budget uploads (CSV, JSON, XLSX and legacy XLS) into
// normalized records. Row-oriented files yield one record per row, JSON trees
// one record per populated month, and pivot sheets one record per non-zero
// month cell.
package parser

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
)

// Parser holds the alias table used to classify columns
type Parser struct {
	aliases *alias.Resolver
}

// New creates a parser. A nil resolver uses the built-in alias table.
func New(aliases *alias.Resolver) *Parser {
	if aliases == nil {
		aliases = alias.Default()
	}
	return &Parser{aliases: aliases}
}

// Parse dispatches on the file extension
func (p *Parser) Parse(filename string, data []byte) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &budget.ParseError{Message: "file is empty"}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".tsv":
		return p.ParseCSV(bytes.NewReader(data))
	case ".json":
		return p.ParseJSON(bytes.NewReader(data))
	case ".xlsx", ".xlsm":
		return p.ParseXLSX(bytes.NewReader(data))
	case ".xls":
		return p.ParseXLS(bytes.NewReader(data))
	default:
		return nil, &budget.ParseError{Message: "unsupported file type " + filepath.Ext(filename)}
	}
}

// Format names the parser Parse would pick for filename, or "" when unsupported
func Format(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".tsv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".xls":
		return "xls"
	default:
		return ""
	}
}
