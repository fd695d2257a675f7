package mapper

import (
	"fmt"
	"strings"
	"time"
)

// Date formats travel over the wire in the bank-export convention
// ("d.m.Y", "Y-m-d H:i:s", ...) and are converted to Go layouts internally.
var dateTokens = map[byte]string{
	'd': "02",
	'j': "2",
	'm': "01",
	'n': "1",
	'Y': "2006",
	'y': "06",
	'H': "15",
	'G': "15",
	'i': "04",
	's': "05",
}

// fallbackDateFormats is tried in order when the configured primary format
// does not match a value.
var fallbackDateFormats = []string{
	"d.m.Y", "Y-m-d", "d/m/Y", "m/d/Y", "Y.m.d",
	"d.m.Y H:i:s", "Y-m-d H:i:s",
}

// GoLayout converts a date-format string in the export convention into a Go
// time layout. Unknown characters pass through as literals.
func GoLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if layout, ok := dateTokens[format[i]]; ok {
			b.WriteString(layout)
		} else {
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// ParseDate parses a raw cell against the primary format, then against the
// fallback list, first match wins. The primary format is skipped inside the
// fallback pass when it already appears there.
func ParseDate(value, format string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}

	if t, err := time.Parse(GoLayout(format), value); err == nil {
		return t, nil
	}

	for _, alt := range fallbackDateFormats {
		if alt == format {
			continue
		}
		if t, err := time.Parse(GoLayout(alt), value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q does not match %q or any fallback format", ErrInvalidDate, value, format)
}
