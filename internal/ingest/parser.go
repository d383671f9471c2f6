package ingest

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// minDataCommas is the comma count from which a line is treated as CSV data
// rather than a section header.
const minDataCommas = 5

// splitLines splits a response body into lines, dropping a leading BOM.
func splitLines(body []byte) []string {
	text := strings.TrimPrefix(string(body), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func isDataLine(line string) bool {
	return strings.Count(line, ",") >= minDataCommas
}

// parseCSVLine parses a single data line.
func parseCSVLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv line %q: %v", ErrSchemaMismatch, line, err)
	}
	return record, nil
}

// segmenter accumulates rows under the current section name.
type segmenter struct {
	name     string
	rows     [][]string
	segments []RawSegment
}

func (s *segmenter) flush() {
	if s.name != "" && len(s.rows) > 0 {
		s.segments = append(s.segments, RawSegment{Name: s.name, Rows: s.rows})
	}
	s.rows = nil
}

// Segment cuts lines into named segments. A line with at least six
// comma-separated fields is a data row of the current segment; any other
// line closes the current segment and, if non-empty, names the next one.
//
// Lines beginning with one of specialCases start a new segment named after
// the prefix even without a preceding boundary line; the statement exports
// print some section titles on the same line as their first row.
func Segment(lines []string, specialCases []string) ([]RawSegment, error) {
	s := &segmenter{}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		for _, prefix := range specialCases {
			if strings.HasPrefix(line, prefix) {
				s.flush()
				s.name = prefix
				break
			}
		}

		if isDataLine(line) {
			record, err := parseCSVLine(line)
			if err != nil {
				return nil, err
			}
			s.rows = append(s.rows, record)
			continue
		}

		s.flush()
		if line != "" {
			s.name = line
		}
	}
	s.flush()

	return s.segments, nil
}

// MapSections zips segments with the expected sections by position. A name
// mismatch, a dropped output or an empty segment skips the position; the
// feed omits sections depending on the kind of company.
func MapSections(segments []RawSegment, expected []ExpectedSection) ([]MappedSection, error) {
	if len(segments) == 0 {
		return nil, ErrNotFound
	}

	var mapped []MappedSection
	for i, exp := range expected {
		if i >= len(segments) {
			break
		}
		seg := segments[i]
		if exp.Output == "" || seg.Name != exp.Match || len(seg.Rows) == 0 {
			continue
		}
		mapped = append(mapped, MappedSection{Name: exp.Output, Rows: seg.Rows})
	}
	return mapped, nil
}

// ApplyAxis turns a mapped section into a typed table on the given axis.
// A leading row whose first value is itself a period token is the repeated
// header and is dropped.
func ApplyAxis(section MappedSection, axis PeriodAxis) (*Table, error) {
	rows := section.Rows
	if len(rows) > 0 && len(rows[0]) > 1 && looksLikePeriod(rows[0][1]) {
		rows = rows[1:]
	}

	table := &Table{
		Name:    section.Name,
		Periods: axis,
		Rows:    make([]Row, 0, len(rows)),
	}
	seen := make(map[string]int, len(rows))

	for _, record := range rows {
		if len(record) == 0 {
			continue
		}
		cells := record[1:]
		if len(cells) > len(axis) {
			return nil, fmt.Errorf("%w: table %q row %q has %d values for %d periods",
				ErrSchemaMismatch, section.Name, record[0], len(cells), len(axis))
		}

		values := make([]Value, len(axis))
		for i, cell := range cells {
			v, err := Coerce(cell)
			if err != nil {
				return nil, fmt.Errorf("table %q row %q period %s: %w", section.Name, record[0], axis[i], err)
			}
			values[i] = v
		}

		table.Rows = append(table.Rows, Row{
			Label:  uniqueLabel(seen, strings.TrimSpace(record[0])),
			Values: values,
		})
	}

	return table, nil
}

func uniqueLabel(seen map[string]int, label string) string {
	seen[label]++
	if n := seen[label]; n > 1 {
		return fmt.Sprintf("%s (%d)", label, n)
	}
	return label
}

// Normalize maps segments against a layout and applies the period axis taken
// from the first segment. Sections left without rows are not returned.
func Normalize(segments []RawSegment, expected []ExpectedSection) ([]*Table, error) {
	mapped, err := MapSections(segments, expected)
	if err != nil {
		return nil, err
	}

	axis, err := DerivePeriodAxis(segments[0].Rows[0])
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(mapped))
	for _, section := range mapped {
		table, err := ApplyAxis(section, axis)
		if err != nil {
			return nil, err
		}
		if len(table.Rows) > 0 {
			tables = append(tables, table)
		}
	}
	return tables, nil
}
