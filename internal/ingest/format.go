package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const missingCell = "-"

func formatValue(v Value) string {
	if !v.Valid {
		return missingCell
	}
	return strconv.FormatFloat(v.Float, 'f', 2, 64)
}

// Format writes the table as aligned plain text: labels left, values right,
// one column per period.
func (t *Table) Format(w io.Writer) error {
	grid := make([][]string, 0, len(t.Rows)+1)

	header := append([]string{t.Name}, t.Periods.Strings()...)
	grid = append(grid, header)
	for _, row := range t.Rows {
		line := make([]string, 0, len(row.Values)+1)
		line = append(line, row.Label)
		for _, v := range row.Values {
			line = append(line, formatValue(v))
		}
		grid = append(grid, line)
	}

	widths := make([]int, len(header))
	for _, line := range grid {
		for i, cell := range line {
			if width := runewidth.StringWidth(cell); width > widths[i] {
				widths[i] = width
			}
		}
	}

	for _, line := range grid {
		var sb strings.Builder
		for i, cell := range line {
			if i == 0 {
				sb.WriteString(runewidth.FillRight(cell, widths[i]))
				continue
			}
			sb.WriteString("  ")
			sb.WriteString(runewidth.FillLeft(cell, widths[i]))
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(sb.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}
