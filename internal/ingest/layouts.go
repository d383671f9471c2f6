package ingest

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed layouts.yaml
var layoutsYAML []byte

// Layout names.
const (
	LayoutKeyRatios       = "key_ratios"
	LayoutIncomeStatement = "income_statement"
	LayoutBalanceSheet    = "balance_sheet"
	LayoutCashFlow        = "cash_flow"
)

// Layout describes how a line-oriented report is cut into tables.
type Layout struct {
	Name string `yaml:"-"`
	// FirstSegment renames the first segment before mapping. The statement
	// exports title it with the company name.
	FirstSegment string            `yaml:"first_segment"`
	SpecialCases []string          `yaml:"special_cases"`
	Sections     []ExpectedSection `yaml:"sections"`
}

var loadLayouts = sync.OnceValues(func() (map[string]Layout, error) {
	return parseLayouts(layoutsYAML)
})

func parseLayouts(data []byte) (map[string]Layout, error) {
	var layouts map[string]Layout
	if err := yaml.Unmarshal(data, &layouts); err != nil {
		return nil, fmt.Errorf("parsing layouts: %w", err)
	}
	for name, l := range layouts {
		if len(l.Sections) == 0 {
			return nil, fmt.Errorf("layout %q has no sections", name)
		}
		l.Name = name
		layouts[name] = l
	}
	return layouts, nil
}

// LookupLayout returns a copy of the named layout.
func LookupLayout(name string) (Layout, error) {
	layouts, err := loadLayouts()
	if err != nil {
		return Layout{}, err
	}
	l, ok := layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q", name)
	}
	l.SpecialCases = slices.Clone(l.SpecialCases)
	l.Sections = slices.Clone(l.Sections)
	return l, nil
}

// StatementLayout returns the CSV layout of a statement report.
func StatementLayout(report ReportType) (Layout, error) {
	return LookupLayout(report.TableName())
}

// Tables segments a report body and normalizes it against the layout.
func (l Layout) Tables(body []byte) ([]*Table, error) {
	segments, err := Segment(splitLines(body), l.SpecialCases)
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 && l.FirstSegment != "" {
		segments[0].Name = l.FirstSegment
	}
	return Normalize(segments, l.Sections)
}
