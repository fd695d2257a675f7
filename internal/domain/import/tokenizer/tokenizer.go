// Package tokenizer reads delimiter/quote-configurable CSV one row at a time,
// tolerating malformed lines. It is the only layer that touches raw statement
// text; everything above it sees trimmed, control-character-free cells.
package tokenizer

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// noQuote is substituted when the caller declares an empty quote character.
// Normalized input never contains NUL bytes, so quoting is effectively off.
const noQuote = '\x00'

// continuationLimit caps how many extra physical lines a quoted field may
// span before the row is handed to manual recovery.
const continuationLimit = 10

var errUnterminatedQuote = errors.New("unterminated quoted field")

// Tokenizer yields rows from a text stream in a single forward pass.
// It is not restartable and never propagates parse errors: the only outward
// signals are a row of cells or "no row".
type Tokenizer struct {
	r         *bufio.Reader
	delimiter rune
	quote     rune
	// pending holds physical lines consumed as quote continuations that
	// turned out not to belong to the failed row. They replay before the
	// reader so a stray quote cannot swallow the rows after it.
	pending []string
	srcEOF  bool
	done    bool
	lastErr error
}

// New creates a tokenizer over r. A zero quote rune disables quoting.
func New(r io.Reader, delimiter, quote rune) *Tokenizer {
	if quote == 0 {
		quote = noQuote
	}
	return &Tokenizer{
		r:         bufio.NewReader(r),
		delimiter: delimiter,
		quote:     quote,
	}
}

// Next returns the next row of cleaned cells. ok is false at end of stream or
// on an unrecoverable line; Err distinguishes the two for logging only.
func (t *Tokenizer) Next() ([]string, bool) {
	if t.done {
		return nil, false
	}

	for {
		line, eof := t.readLine()
		if line == "" && eof {
			t.done = true
			return nil, false
		}

		// Blank lines are skippable, not a termination signal.
		if strings.TrimSpace(line) == "" {
			if eof {
				t.done = true
				return nil, false
			}
			continue
		}

		cells, err := t.parseLine(line, eof)
		if err != nil {
			cells = t.recover(line)
			if len(cells) == 0 {
				t.done = true
				t.lastErr = err
				return nil, false
			}
			t.lastErr = err
		}

		if eof {
			t.done = true
		}
		return cells, true
	}
}

// Err reports why the last recovery or termination happened. Informational:
// callers log it, nothing may branch on it.
func (t *Tokenizer) Err() error {
	return t.lastErr
}

// readLine returns the next physical line without its terminator, draining
// replayed continuation lines before touching the reader.
func (t *Tokenizer) readLine() (string, bool) {
	if len(t.pending) > 0 {
		line := t.pending[0]
		t.pending = t.pending[1:]
		return line, t.srcEOF && len(t.pending) == 0
	}
	line, err := t.r.ReadString('\n')
	if err != nil {
		t.srcEOF = true
	}
	line = strings.TrimRight(line, "\r\n")
	return line, t.srcEOF
}

// parseLine splits a single line on the configured delimiter/quote. A quoted
// field may span additional physical lines up to continuationLimit. When the
// quote never closes, the lines consumed as continuations go back onto the
// pending queue so only the first physical line is lost to recovery.
func (t *Tokenizer) parseLine(first string, eof bool) ([]string, error) {
	line := first
	var continuations []string
	for {
		cells, err := splitQuoted(line, t.delimiter, t.quote)
		if err == nil {
			return cleanCells(cells), nil
		}
		if eof || len(continuations) >= continuationLimit {
			t.pending = append(continuations, t.pending...)
			return nil, err
		}
		next, nextEOF := t.readLine()
		eof = nextEOF
		continuations = append(continuations, next)
		line += "\n" + next
	}
}

// recover re-splits the raw line as plain text, ignoring quote semantics.
func (t *Tokenizer) recover(line string) []string {
	parts := strings.Split(line, string(t.delimiter))
	for i, p := range parts {
		parts[i] = strings.Trim(p, string(t.quote))
	}
	cells := cleanCells(parts)
	for _, c := range cells {
		if c != "" {
			return cells
		}
	}
	return nil
}

// splitQuoted is a single-line CSV field splitter with a configurable quote
// rune; encoding/csv hard-codes '"' so it cannot serve here. Doubled quotes
// inside a quoted field collapse to a literal quote.
func splitQuoted(line string, delimiter, quote rune) ([]string, error) {
	var (
		cells    []string
		field    strings.Builder
		inQuotes bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == quote:
			if inQuotes && i+1 < len(runes) && runes[i+1] == quote {
				field.WriteRune(quote)
				i++
				continue
			}
			inQuotes = !inQuotes
		case r == delimiter && !inQuotes:
			cells = append(cells, field.String())
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	if inQuotes {
		return nil, errUnterminatedQuote
	}
	cells = append(cells, field.String())
	return cells, nil
}

// cleanCells trims each cell and strips NUL and other control characters.
func cleanCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(stripControl(c))
	}
	return out
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7F {
			return -1
		}
		return r
	}, s)
}
