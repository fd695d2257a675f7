// Package sniffer inspects an uploaded statement at upload time. It suggests
// a delimiter, locates the header row, fingerprints the headers and collects
// a handful of sample rows for the job metadata document.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"github.com/centavohq/centavo/internal/domain/import/mapper"
	"github.com/centavohq/centavo/internal/domain/import/tokenizer"
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Header keywords across the statement formats we commonly see (English,
// German, Portuguese, Spanish). Matching is substring based and lowercase.
var headerKeywords = []string{
	"date", "description", "amount", "debit", "credit", "balance", "partner", "iban",
	"datum", "buchungstag", "verwendungszweck", "betrag", "empfänger", "empfaenger",
	"data", "descrição", "descricao", "débito", "debito", "crédito", "credito", "saldo",
	"fecha", "descripción", "descripcion", "importe",
}

const (
	headerSearchLimit = 20
	sampleRowCount    = 5
)

// Result is the detected shape of an uploaded file.
type Result struct {
	Delimiter rune
	// SkipLines is the physical line index of the header row.
	SkipLines int
	// HeaderRows is the number of non-blank rows before data starts; the
	// tokenizer skips blank lines, so row iteration uses this count.
	HeaderRows  int
	Headers     []string
	Fingerprint string
	SampleRows  [][]string
}

// Options overrides parts of auto-detection when the client already knows
// the file shape.
type Options struct {
	// Delimiter forces the field delimiter when non-zero.
	Delimiter rune
	// Quote overrides the '"' default when non-zero so sampling tokenizes
	// the same way processing will.
	Quote rune
	// HeaderRowIndex forces a 0-based header row. Negative means auto-detect.
	HeaderRowIndex int
}

// Sniff analyzes decoded file bytes and returns the detected configuration.
// The input is expected to already be UTF-8; run it through encoding.Normalize
// first.
func Sniff(data []byte, opts *Options) (*Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	quote := '"'
	if opts != nil && opts.Quote != 0 {
		quote = opts.Quote
	}

	var (
		delimiter rune
		skipLines int
	)
	switch {
	case opts != nil && opts.HeaderRowIndex >= 0:
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		delimiter = opts.Delimiter
		if delimiter == 0 {
			delimiter, _ = detectDelimiter(cleanLine(lines[skipLines], skipLines == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	case opts != nil && opts.Delimiter != 0:
		delimiter = opts.Delimiter
		var err error
		_, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
	default:
		var err error
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
	}

	headerLine := cleanLine(lines[skipLines], skipLines == 0)
	headers := readRow(headerLine, delimiter, quote)
	if len(headers) == 0 {
		return nil, ErrNoHeadersFound
	}

	// The tokenizer skips blank lines, so convert the physical header index
	// into a count of non-blank rows to skip.
	rowsBeforeData := 0
	for _, line := range lines[:skipLines+1] {
		if strings.TrimSpace(strings.TrimRight(line, "\r")) != "" {
			rowsBeforeData++
		}
	}

	return &Result{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		HeaderRows:  rowsBeforeData,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  sampleRows(data, delimiter, quote, rowsBeforeData, sampleRowCount),
	}, nil
}

// SuggestMapping guesses a column mapping from header names. Only fields with
// a confident header match are present; the user confirms or corrects the
// suggestion at configure time.
func SuggestMapping(headers []string) map[mapper.Field]int {
	suggestion := make(map[mapper.Field]int)

	match := func(field mapper.Field, idx int, h string, needles ...string) {
		if _, ok := suggestion[field]; ok {
			return
		}
		for _, n := range needles {
			if strings.Contains(h, n) {
				suggestion[field] = idx
				return
			}
		}
	}

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))
		match(mapper.FieldProcessedDate, i, h, "processed", "valuta", "value date", "data valor")
		match(mapper.FieldBookedDate, i, h, "booked", "buchungstag", "date", "datum", "data", "fecha")
		match(mapper.FieldAmount, i, h, "amount", "betrag", "valor", "importe", "montante")
		match(mapper.FieldPartner, i, h, "partner", "payee", "empfänger", "empfaenger", "merchant", "counterparty")
		match(mapper.FieldDescription, i, h, "descri", "verwendungszweck", "memo", "reference", "purpose")
		match(mapper.FieldTargetIBAN, i, h, "iban")
	}

	// A lone date column should map to booked_date even when its header
	// matched the processed date needles first.
	if _, ok := suggestion[mapper.FieldBookedDate]; !ok {
		if idx, ok := suggestion[mapper.FieldProcessedDate]; ok {
			suggestion[mapper.FieldBookedDate] = idx
			delete(suggestion, mapper.FieldProcessedDate)
		}
	}

	return suggestion
}

// Fingerprint hashes normalized header names so repeated uploads of the same
// statement layout can be recognized.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}
	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// findHeaderRow scans the first lines for the most header-like one. Lines
// containing known keywords win; otherwise the line with the most delimited
// columns is used. Bank exports often prepend free-form metadata lines.
func findHeaderRow(lines []string) (rune, int, error) {
	type candidate struct {
		index     int
		delimiter rune
		columns   int
		keywords  int
	}

	best := candidate{index: -1}
	fallback := candidate{index: -1}

	for i, line := range lines {
		if i >= headerSearchLimit {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		delimiter, columns := detectDelimiter(line)
		if columns < 1 {
			continue
		}

		lower := strings.ToLower(line)
		keywords := 0
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				keywords++
			}
		}

		c := candidate{index: i, delimiter: delimiter, columns: columns, keywords: keywords}
		if keywords > 0 {
			if best.index == -1 || c.columns*10+c.keywords > best.columns*10+best.keywords {
				best = c
			}
		} else if c.columns > fallback.columns {
			fallback = c
		}
	}

	if best.index >= 0 && best.columns >= 2 {
		return best.delimiter, best.index, nil
	}
	if fallback.columns >= 2 {
		return fallback.delimiter, fallback.index, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range []rune{';', '\t', ',', '|'} {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

// readRow tokenizes a single line with the resilient tokenizer so quoted
// headers are handled the same way data rows will be.
func readRow(line string, delimiter, quote rune) []string {
	tok := tokenizer.New(strings.NewReader(line), delimiter, quote)
	row, ok := tok.Next()
	if !ok {
		return nil
	}
	return row
}

// sampleRows collects up to maxRows data rows after skipping the metadata
// and header rows.
func sampleRows(data []byte, delimiter, quote rune, skipRows, maxRows int) [][]string {
	tok := tokenizer.New(bytes.NewReader(data), delimiter, quote)

	var rows [][]string
	skipped := 0
	for {
		row, ok := tok.Next()
		if !ok {
			break
		}
		if skipped < skipRows {
			skipped++
			continue
		}
		rows = append(rows, row)
		if len(rows) >= maxRows {
			break
		}
	}
	return rows
}
