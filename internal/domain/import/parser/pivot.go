package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/coerce"
)

// ErrNotPivot means the sheet does not have a row-labels pivot layout
var ErrNotPivot = errors.New("not a pivot layout")

const (
	maxCodeLength  = 64
	headerScanRows = 20
)

var rowLabelHeaders = map[string]bool{
	"row labels":       true,
	"row label":        true,
	"satir etiketleri": true,
}

// monthTokens maps folded English and Turkish month names and abbreviations
var monthTokens = map[string]int{
	"jan": 1, "january": 1, "oca": 1, "ocak": 1,
	"feb": 2, "february": 2, "sub": 2, "subat": 2,
	"mar": 3, "march": 3, "mart": 3,
	"apr": 4, "april": 4, "nis": 4, "nisan": 4,
	"may": 5, "mayis": 5,
	"jun": 6, "june": 6, "haz": 6, "haziran": 6,
	"jul": 7, "july": 7, "tem": 7, "temmuz": 7,
	"aug": 8, "august": 8, "agu": 8, "agustos": 8,
	"sep": 9, "sept": 9, "september": 9, "eyl": 9, "eylul": 9,
	"oct": 10, "october": 10, "eki": 10, "ekim": 10,
	"nov": 11, "november": 11, "kas": 11, "kasim": 11,
	"dec": 12, "december": 12, "ara": 12, "aralik": 12,
}

// pivotAttributes are row columns carried onto every month record
var pivotAttributes = map[string]bool{
	alias.FieldBudgetCode:   true,
	alias.FieldMapAttribute: true,
	alias.FieldCostType:     true,
	alias.FieldAssetType:    true,
	alias.FieldDepartment:   true,
	alias.FieldScenario:     true,
}

var (
	tokenPattern = regexp.MustCompile(`[a-z]+|[0-9]+`)

	// Matchers are shared, so only MatchThreadSafe is used on them
	actualMarkers = newKeywordMatcher("actual", "expense", "harcama", "gerceklesen", "fiili", "spent")
	totalMarkers  = newKeywordMatcher("total", "toplam")
)

func newKeywordMatcher(words ...string) *ahocorasick.Matcher {
	patterns := make([][]byte, len(words))
	for i, w := range words {
		patterns[i] = []byte(w)
	}
	return ahocorasick.NewMatcher(patterns)
}

func matches(m *ahocorasick.Matcher, s string) bool {
	return len(m.MatchThreadSafe([]byte(s))) > 0
}

type monthColumn struct {
	index int
	year  int
	month int
}

// ParsePivot reads a pivot sheet: a "Row Labels" column naming budget items
// and one column per month. Plan columns are named by a month plus a 2- or
// 4-digit year ("Mart 26", "Plan Mar 2026") or hold an Excel date. Columns
// marked as actuals or totals are ignored, as are total rows. Each non-zero,
// non-blank month cell becomes one plan record.
func (p *Parser) ParsePivot(rows [][]string) ([]Record, error) {
	headerRow, labelCol := -1, -1
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		for j, cell := range rows[i] {
			if rowLabelHeaders[foldLower(strings.TrimSpace(cell))] {
				headerRow, labelCol = i, j
				break
			}
		}
		if headerRow >= 0 {
			break
		}
	}
	if headerRow < 0 {
		return nil, ErrNotPivot
	}

	header := rows[headerRow]
	var months []monthColumn
	attributes := make(map[int]string)
	for j, cell := range header {
		if j == labelCol {
			continue
		}
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if field, ok := p.aliases.Field(cell); ok && pivotAttributes[field] {
			attributes[j] = field
			continue
		}
		folded := foldLower(cell)
		if matches(totalMarkers, folded) || matches(actualMarkers, folded) {
			continue
		}
		if year, month, ok := parseMonthHeader(cell); ok {
			months = append(months, monthColumn{index: j, year: year, month: month})
		}
	}
	if len(months) == 0 {
		return nil, ErrNotPivot
	}

	var records []Record
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		label := cellAt(row, labelCol)
		if label == "" || matches(totalMarkers, foldLower(label)) {
			continue
		}

		base := map[string]any{
			alias.FieldType:       string(KindPlan),
			alias.FieldBudgetName: label,
		}
		for j, field := range attributes {
			if v := cellAt(row, j); v != "" {
				base[field] = v
			}
		}
		if _, ok := base[alias.FieldBudgetCode]; !ok {
			base[alias.FieldBudgetCode] = DeriveCode(label)
		}

		for _, col := range months {
			raw := cellAt(row, col.index)
			if raw == "" {
				continue
			}
			if d, err := coerce.Decimal(alias.FieldAmount, raw); err == nil && d.IsZero() {
				continue
			}

			fields := make(map[string]any, len(base)+3)
			for k, v := range base {
				fields[k] = v
			}
			fields[alias.FieldYear] = col.year
			fields[alias.FieldMonth] = col.month
			fields[alias.FieldAmount] = raw
			records = append(records, Record{Line: i + 1, Kind: KindPlan, RawType: string(KindPlan), Fields: fields})
		}
	}
	return records, nil
}

// parseMonthHeader extracts year and month from a pivot column header
func parseMonthHeader(header string) (int, int, bool) {
	if serial, err := strconv.ParseFloat(header, 64); err == nil {
		// Excel serials between 1954 and 2119
		if serial < 20000 || serial > 80000 {
			return 0, 0, false
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return 0, 0, false
		}
		return t.Year(), int(t.Month()), true
	}

	year, month := 0, 0
	for _, tok := range tokenPattern.FindAllString(foldLower(header), -1) {
		if m, ok := monthTokens[tok]; ok {
			if month == 0 {
				month = m
			}
			continue
		}
		if year != 0 || tok[0] < '0' || tok[0] > '9' {
			continue
		}
		switch len(tok) {
		case 2:
			n, _ := strconv.Atoi(tok)
			year = 2000 + n
		case 4:
			year, _ = strconv.Atoi(tok)
		}
	}
	return year, month, year != 0 && month != 0
}

// DeriveCode builds a budget code from an item name: diacritics folded,
// upper-cased, runs of non-alphanumerics collapsed to "_", capped at 64.
func DeriveCode(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToUpper(fold(name)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}

	code := b.String()
	if len(code) > maxCodeLength {
		code = strings.TrimRight(code[:maxCodeLength], "_")
	}
	return code
}

// fold strips combining marks and maps the dotless i, so "Satır Etiketleri"
// and "Şubat" compare as "Satir Etiketleri" and "Subat".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Map(func(r rune) rune {
		if r == 'ı' {
			return 'i'
		}
		return r
	}, out)
}

func foldLower(s string) string {
	return strings.ToLower(fold(s))
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
