// Package sniffer detects the layout of delimited budget uploads: the field
// delimiter, how many preamble lines precede the header, and a fingerprint of
// the header used to recognize repeat uploads.
package sniffer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
)

// FieldMatcher maps a raw header cell onto a known import field
type FieldMatcher interface {
	Field(header string) (string, bool)
}

// scanLines bounds how far into the file the header is searched for
const scanLines = 20

var delimiters = []rune{';', '\t', ',', '|'}

// FileConfig holds the detected configuration for a delimited file
type FileConfig struct {
	Delimiter   rune     // The field delimiter (';', ',', '\t', '|')
	SkipLines   int      // Number of preamble lines before headers
	Headers     []string // Detected header names
	Fingerprint string   // SHA256 hash of normalized headers
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
)

// DetectConfig analyzes a delimited file and returns its configuration.
// Header cells are recognized through fields.
func DetectConfig(data []byte, fields FieldMatcher) (*FileConfig, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")
	best, err := findHeaderRow(lines, fields)
	if err != nil {
		return nil, err
	}

	headers := best.cells
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   best.delimiter,
		SkipLines:   best.index,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
	}, nil
}

type candidate struct {
	index     int
	delimiter rune
	cells     []string
	matches   int
}

// findHeaderRow picks the line with the most cells naming a known field,
// the earliest on ties. Without any such line the widest line wins, and a file
// of single cells is read as comma separated from its first line.
func findHeaderRow(lines []string, fields FieldMatcher) (candidate, error) {
	var header, widest, first *candidate

	for i, line := range lines {
		if i > scanLines {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		c := splitLine(i, line, fields)
		if first == nil {
			first = &c
		}
		if c.matches > 0 && (header == nil || c.matches > header.matches) {
			header = &c
		}
		if len(c.cells) > 1 && (widest == nil || len(c.cells) > len(widest.cells)) {
			widest = &c
		}
	}

	switch {
	case header != nil:
		return *header, nil
	case widest != nil:
		return *widest, nil
	case first != nil:
		return *first, nil
	default:
		return candidate{}, ErrNoHeadersFound
	}
}

// splitLine reads line once per delimiter with quoting honoured and keeps the
// split with the most field matches, then the most cells.
func splitLine(index int, line string, fields FieldMatcher) candidate {
	best := candidate{index: index, delimiter: ',', cells: []string{line}}
	if fields != nil {
		best.matches = countMatches(best.cells, fields)
	}

	for _, d := range delimiters {
		reader := csv.NewReader(strings.NewReader(line))
		reader.Comma = d
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		cells, err := reader.Read()
		if err != nil || len(cells) < 2 {
			continue
		}

		c := candidate{index: index, delimiter: d, cells: cells}
		if fields != nil {
			c.matches = countMatches(cells, fields)
		}
		if c.matches > best.matches || (c.matches == best.matches && len(c.cells) > len(best.cells)) {
			best = c
		}
	}
	return best
}

func countMatches(cells []string, fields FieldMatcher) int {
	n := 0
	for _, cell := range cells {
		if _, ok := fields.Field(strings.TrimSpace(cell)); ok {
			n++
		}
	}
	return n
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

// Fingerprint hashes normalized header names so the same export layout always
// yields the same value regardless of case or punctuation.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}
