package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	labelPrefix   = "label"
	dataPrefix    = "data"
	paddingSuffix = "padding"
	groupClass    = "r_content"
	noParent      = -1
)

// statementEnvelope is the JSON wrapper around the statement HTML.
type statementEnvelope struct {
	Result string `json:"result"`
}

// decodeEnvelope extracts the HTML fragment from a statement response body.
func decodeEnvelope(body []byte) (string, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("%w: no body", ErrEmptyResponse)
	}
	var env statementEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmptyResponse, err)
	}
	if strings.TrimSpace(env.Result) == "" {
		return "", fmt.Errorf("%w: envelope has no result", ErrEmptyResponse)
	}
	return env.Result, nil
}

// nodeID returns the row id of a label or data node, or false when the node
// is not a visible node of that kind.
func nodeID(node *goquery.Selection, prefix string) (string, bool) {
	id, ok := node.Attr("id")
	if !ok || !strings.HasPrefix(id, prefix) || strings.HasSuffix(id, paddingSuffix) {
		return "", false
	}
	if isHidden(node) {
		return "", false
	}
	return strings.TrimPrefix(strings.TrimPrefix(id, prefix), "_"), true
}

func isHidden(node *goquery.Selection) bool {
	style, ok := node.Attr("style")
	if !ok {
		return false
	}
	compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(compact, "display:none")
}

func labelTitle(node *goquery.Selection) string {
	inner := node.Find("div").First()
	if inner.Length() == 0 {
		inner = node
	}
	if title, ok := inner.Attr("title"); ok {
		return title
	}
	return strings.TrimSpace(inner.Text())
}

// readLabels walks the label tree in pre-order. The next row index is always
// len(labels); entering a content group makes the most recent label the
// parent of everything inside it.
func readLabels(root *goquery.Selection, parent int, labels []LabelNode) []LabelNode {
	children := root.Children()
	for i := range children.Nodes {
		node := children.Eq(i)

		if node.HasClass(groupClass) {
			labels = readLabels(node, len(labels)-1, labels)
		}

		id, ok := nodeID(node, labelPrefix)
		if !ok {
			continue
		}
		index := len(labels)
		parentIndex := parent
		if parentIndex == noParent {
			parentIndex = index
		}
		labels = append(labels, LabelNode{
			ID:          id,
			Index:       index,
			ParentIndex: parentIndex,
			Title:       labelTitle(node),
		})
	}
	return labels
}

// readData walks the data tree with the same recursion rule and fills
// values[row] for every data node. The cursor moves forward only: labels that
// have no data row are skipped. It returns the cursor after the walk.
func readData(root *goquery.Selection, labels []LabelNode, values [][]Value, periods int, cursor int) (int, error) {
	children := root.Children()
	for i := range children.Nodes {
		node := children.Eq(i)

		if node.HasClass(groupClass) {
			var err error
			cursor, err = readData(node, labels, values, periods, cursor)
			if err != nil {
				return cursor, err
			}
		}

		id, ok := nodeID(node, dataPrefix)
		if !ok {
			continue
		}

		for cursor < len(labels) && labels[cursor].ID != id {
			cursor++
		}
		if cursor >= len(labels) {
			return cursor, fmt.Errorf("%w: data row %q has no label", ErrTreeDesync, id)
		}

		cells := node.Children()
		if cells.Length() > periods {
			return cursor, fmt.Errorf("%w: data row %q has %d cells for %d periods",
				ErrSchemaMismatch, id, cells.Length(), periods)
		}
		row := make([]Value, periods)
		for j := range cells.Nodes {
			raw, ok := cells.Eq(j).Attr("rawvalue")
			row[j] = parseRawValue(raw, ok)
		}
		values[cursor] = row
		cursor++
	}
	return cursor, nil
}

// readPeriodHeader derives the axis from the Year node of the data tree.
func readPeriodHeader(table *goquery.Selection) (PeriodAxis, error) {
	year := table.Find("div#Year").First()
	if year.Length() == 0 {
		return nil, fmt.Errorf("%w: statement has no Year header", ErrSchemaMismatch)
	}
	columns := year.Children()
	if columns.Length() == 0 {
		return nil, fmt.Errorf("%w: Year header is empty", ErrSchemaMismatch)
	}
	start, err := ParsePeriod(columns.First().Text())
	if err != nil {
		return nil, err
	}
	return NewPeriodAxis(start, columns.Length()), nil
}

// readUnits reads the fiscal year end month and currency.
func readUnits(doc *goquery.Selection) (time.Month, string, error) {
	unit := doc.Find("#unitsAndFiscalYear").First()
	if unit.Length() == 0 {
		return 0, "", fmt.Errorf("%w: statement has no unitsAndFiscalYear node", ErrSchemaMismatch)
	}
	month, err := strconv.Atoi(strings.TrimSpace(unit.AttrOr("fyenumber", "")))
	if err != nil || month < 1 || month > 12 {
		return 0, "", fmt.Errorf("%w: fiscal year end %q", ErrSchemaMismatch, unit.AttrOr("fyenumber", ""))
	}
	currency := strings.TrimSpace(unit.AttrOr("currency", ""))
	if currency == "" {
		return 0, "", fmt.Errorf("%w: statement has no currency", ErrSchemaMismatch)
	}
	return time.Month(month), currency, nil
}

// ParseStatement reads one statement report from its HTML fragment. All
// traversal state is local to the call.
func ParseStatement(name, html string) (*Statement, TickerMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, TickerMetadata{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	left := doc.Find("div.left").First().Find("div").First()
	if left.Length() == 0 {
		return nil, TickerMetadata{}, fmt.Errorf("%w: statement has no label tree", ErrSchemaMismatch)
	}
	main := doc.Find("div.main").First().Find("div.rf_table").First()
	if main.Length() == 0 {
		return nil, TickerMetadata{}, fmt.Errorf("%w: statement has no data tree", ErrSchemaMismatch)
	}

	axis, err := readPeriodHeader(main)
	if err != nil {
		return nil, TickerMetadata{}, err
	}
	month, currency, err := readUnits(doc.Selection)
	if err != nil {
		return nil, TickerMetadata{}, err
	}

	labels := readLabels(left, noParent, nil)
	values := make([][]Value, len(labels))
	if _, err := readData(main, labels, values, len(axis), 0); err != nil {
		return nil, TickerMetadata{}, err
	}

	stmt := &Statement{
		Name:    name,
		Periods: axis,
		Rows:    make([]StatementRow, len(labels)),
	}
	for i, label := range labels {
		row := values[i]
		if row == nil {
			row = make([]Value, len(axis))
		}
		stmt.Rows[i] = StatementRow{LabelNode: label, Values: row}
	}

	return stmt, TickerMetadata{FiscalYearEnd: month, Currency: currency}, nil
}
