package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Period is a fiscal reporting period. Quarter 0 means a full fiscal year.
type Period struct {
	Year    int
	Quarter int
}

// String returns the canonical form: "2Q2025" for quarters, "FY2024" for years.
func (p Period) String() string {
	if p.Quarter == 0 {
		return fmt.Sprintf("FY%d", p.Year)
	}
	return fmt.Sprintf("%dQ%d", p.Quarter, p.Year)
}

// IsZero reports whether p is the empty period.
func (p Period) IsZero() bool { return p.Year == 0 }

// IsAnnual reports whether p is a full fiscal year.
func (p Period) IsAnnual() bool { return p.Quarter == 0 }

func (p Period) granularity() string {
	if p.IsAnnual() {
		return "fy"
	}
	return "q"
}

// End returns the last day of the period. Fiscal years are assumed to be
// calendar aligned.
func (p Period) End() time.Time {
	month := time.December
	if p.Quarter > 0 {
		month = time.Month(p.Quarter * 3)
	}
	// Day 0 of the following month is the last day of month.
	return time.Date(p.Year, month+1, 0, 0, 0, 0, 0, time.UTC)
}

// Before orders periods by year, then quarter. A fiscal year sorts after the
// fourth quarter of the same year.
func (p Period) Before(o Period) bool {
	return p.ordinal() < o.ordinal()
}

func (p Period) ordinal() int {
	q := p.Quarter
	if q == 0 {
		q = 5
	}
	return p.Year*10 + q
}

type periodPattern struct {
	name string
	re   *regexp.Regexp
	// parse turns the submatches into a period.
	parse func(m []string) (Period, bool)
}

var ordinalQuarters = map[string]int{
	"first": 1, "1st": 1,
	"second": 2, "2nd": 2,
	"third": 3, "3rd": 3,
	"fourth": 4, "4th": 4,
}

// yearSuffix matches the year after a period marker. Four digits may follow
// whitespace or a hyphen; two digits need an apostrophe or must follow
// directly, so "Q4 10-K" or "Q3 15 analysts" are not periods.
const yearSuffix = `(?:[\s\-]*(\d{4})|\s*['’](\d{2})|(\d{2}))\b`

// periodPatterns are tried in order; quarter forms come first so "Q2 FY2025"
// resolves to the quarter rather than the year.
var periodPatterns = []periodPattern{
	{
		name: "q_then_year", // Q2 2025, Q2'25, Q2 FY2025, Q2 FY25
		re:   regexp.MustCompile(`(?i)\bq([1-4])(?:\s*fy)?` + yearSuffix),
		parse: func(m []string) (Period, bool) {
			return quarterPeriod(m[1], firstNonEmpty(m[2:]))
		},
	},
	{
		name: "quarter_number_first", // 2Q25, 2Q2025
		re:   regexp.MustCompile(`(?i)\b([1-4])q` + yearSuffix),
		parse: func(m []string) (Period, bool) {
			return quarterPeriod(m[1], firstNonEmpty(m[2:]))
		},
	},
	{
		name: "quarter_words", // second quarter of 2025
		re:   regexp.MustCompile(`(?i)\b(first|second|third|fourth|1st|2nd|3rd|4th)\s+(?:fiscal\s+)?quarter(?:\s+of)?(?:\s+(?:fiscal|fy))?\s+(\d{4})\b`),
		parse: func(m []string) (Period, bool) {
			q := ordinalQuarters[strings.ToLower(m[1])]
			return quarterPeriod(strconv.Itoa(q), m[2])
		},
	},
	{
		name: "fiscal_year_short", // FY2024, FY 2024, FY24, FY'24
		re:   regexp.MustCompile(`(?i)\bfy` + yearSuffix),
		parse: func(m []string) (Period, bool) {
			y, ok := parseYear(firstNonEmpty(m[1:]))
			return Period{Year: y}, ok
		},
	},
	{
		name: "fiscal_year_words", // fiscal year 2024, fiscal 2024
		re:   regexp.MustCompile(`(?i)\bfiscal\s+(?:year\s+)?(\d{4})\b`),
		parse: func(m []string) (Period, bool) {
			y, ok := parseYear(m[1])
			return Period{Year: y}, ok
		},
	},
}

// ExtractPeriod finds the first reporting period mentioned in text.
func ExtractPeriod(text string) (Period, bool) {
	if strings.TrimSpace(text) == "" {
		return Period{}, false
	}
	for _, p := range periodPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if period, ok := p.parse(m); ok {
			return period, true
		}
	}
	return Period{}, false
}

// ParsePeriod parses a canonical period string such as "2Q2025" or "FY2024".
// Any form accepted by ExtractPeriod is also accepted.
func ParsePeriod(s string) (Period, bool) {
	return ExtractPeriod(s)
}

func firstNonEmpty(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return g
		}
	}
	return ""
}

func quarterPeriod(q, year string) (Period, bool) {
	qn, err := strconv.Atoi(q)
	if err != nil || qn < 1 || qn > 4 {
		return Period{}, false
	}
	y, ok := parseYear(year)
	if !ok {
		return Period{}, false
	}
	return Period{Year: y, Quarter: qn}, true
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	switch len(s) {
	case 2:
		return 2000 + y, true
	case 4:
		if y < 1900 || y > 2199 {
			return 0, false
		}
		return y, true
	}
	return 0, false
}
