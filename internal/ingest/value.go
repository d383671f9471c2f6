package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// Coerce converts a raw CSV cell into a Value. Thousands separators are
// removed and blank cells become missing. Any other text that does not parse
// as a float is a schema mismatch.
func Coerce(raw string) (Value, error) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return Missing(), nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: cell %q is not numeric", ErrSchemaMismatch, raw)
	}
	return Some(f), nil
}

// parseRawValue reads a statement cell attribute. Unlike Coerce it never
// fails: the statement feed marks absent numbers with placeholder text.
func parseRawValue(raw string, ok bool) Value {
	if !ok {
		return Missing()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Missing()
	}
	return Some(f)
}
