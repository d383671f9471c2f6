package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var periodPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Period is an annual reporting period ending in Month of Year.
type Period struct {
	Year  int
	Month time.Month
}

// End returns the last day of the period.
func (p Period) End() time.Time {
	return time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// ParsePeriod parses a "YYYY-MM" token.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if !periodPattern.MatchString(s) {
		return Period{}, fmt.Errorf("%w: period %q is not YYYY-MM", ErrSchemaMismatch, s)
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: period %q: %v", ErrSchemaMismatch, s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodAxis is an ordered run of consecutive annual periods sharing one
// fiscal year-end month.
type PeriodAxis []Period

// NewPeriodAxis builds n annual periods starting at start.
func NewPeriodAxis(start Period, n int) PeriodAxis {
	axis := make(PeriodAxis, n)
	for i := range axis {
		axis[i] = Period{Year: start.Year + i, Month: start.Month}
	}
	return axis
}

// FiscalYearEnd returns the anchor month, or zero for an empty axis.
func (a PeriodAxis) FiscalYearEnd() time.Month {
	if len(a) == 0 {
		return 0
	}
	return a[0].Month
}

// Index returns the column of p, or -1.
func (a PeriodAxis) Index(p Period) int {
	for i, q := range a {
		if q == p {
			return i
		}
	}
	return -1
}

// Equal reports whether both axes carry the same periods.
func (a PeriodAxis) Equal(b PeriodAxis) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Strings returns the "YYYY-MM" labels of the axis.
func (a PeriodAxis) Strings() []string {
	out := make([]string, len(a))
	for i, p := range a {
		out[i] = p.String()
	}
	return out
}

// DerivePeriodAxis builds the axis from the header row of the first segment:
// cell 0 is the label column, cell 1 the first period, and every further cell
// one more year.
func DerivePeriodAxis(firstRow []string) (PeriodAxis, error) {
	if len(firstRow) < 2 {
		return nil, fmt.Errorf("%w: header row has no period columns", ErrSchemaMismatch)
	}
	start, err := ParsePeriod(firstRow[1])
	if err != nil {
		return nil, err
	}
	return NewPeriodAxis(start, len(firstRow)-1), nil
}

func looksLikePeriod(s string) bool {
	return periodPattern.MatchString(strings.TrimSpace(s))
}
