// Package encoding normalizes uploaded statement files to UTF-8 before
// tokenization. Detection is best-effort: an unresolvable encoding falls back
// to UTF-8 rather than failing the upload.
package encoding

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding identifies a detected source charset.
type Encoding string

const (
	UTF8        Encoding = "UTF-8"
	UTF16LE     Encoding = "UTF-16LE"
	UTF16BE     Encoding = "UTF-16BE"
	ASCII       Encoding = "ASCII"
	ISO8859_1   Encoding = "ISO-8859-1"
	ISO8859_15  Encoding = "ISO-8859-15"
	Windows1252 Encoding = "Windows-1252"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// sampleSize bounds how much of the file Detect inspects. Matches the upload
// preprocessor, which only reads the head of the file before transcoding.
const sampleSize = 10000

// Detect inspects the head of the file and classifies its charset.
// It never fails; when nothing matches it returns UTF8.
func Detect(data []byte) Encoding {
	sample := data
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	switch {
	case bytes.HasPrefix(sample, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return UTF16BE
	case bytes.HasPrefix(sample, bomUTF8):
		return UTF8
	}

	// No BOM. Embedded null bytes usually mean UTF-16: printable ASCII
	// interleaves with NULs, and the NUL side tells us the byte order.
	if bytes.IndexByte(sample, 0x00) >= 0 {
		if looksUTF16(sample, true) {
			return UTF16LE
		}
		if looksUTF16(sample, false) {
			return UTF16BE
		}
	}

	return guessCharset(sample)
}

// looksUTF16 reports whether the sample contains two consecutive
// printable-ASCII code units in the given byte order.
func looksUTF16(sample []byte, littleEndian bool) bool {
	for i := 0; i+3 < len(sample); i++ {
		var a, b, c, d = sample[i], sample[i+1], sample[i+2], sample[i+3]
		if littleEndian {
			if printableASCII(a) && b == 0 && printableASCII(c) && d == 0 {
				return true
			}
		} else {
			if a == 0 && printableASCII(b) && c == 0 && printableASCII(d) {
				return true
			}
		}
	}
	return false
}

func printableASCII(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

// guessCharset scores the remaining candidates for a BOM-less sample.
func guessCharset(sample []byte) Encoding {
	if utf8.Valid(sample) {
		if isASCII(sample) {
			return ASCII
		}
		return UTF8
	}

	// Not valid UTF-8, so some single-byte charset. Bytes in 0x80-0x9F are
	// control characters in the ISO-8859 family but printable punctuation in
	// Windows-1252, which makes cp1252 the likelier source when they appear.
	for _, b := range sample {
		if b >= 0x80 && b <= 0x9F {
			return Windows1252
		}
	}
	// 0xA4 is the euro sign in ISO-8859-15; plain latin-1 otherwise.
	if bytes.IndexByte(sample, 0xA4) >= 0 {
		return ISO8859_15
	}
	return ISO8859_1
}

func isASCII(sample []byte) bool {
	for _, b := range sample {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Normalize transcodes the whole file to UTF-8 based on the detected
// encoding, strips embedded NUL bytes and drops a leading UTF-8 BOM.
// It never fails; undecodable sequences degrade to replacement runes.
func Normalize(data []byte) []byte {
	enc := Detect(data)

	if dec := decoderFor(enc); dec != nil {
		if converted, err := dec.Bytes(data); err == nil {
			data = converted
		}
	}

	data = bytes.ReplaceAll(data, []byte{0x00}, nil)
	data = bytes.TrimPrefix(data, bomUTF8)
	return data
}

// decoderFor returns a decoder for encodings that need transcoding, or nil
// when the bytes are already UTF-8 compatible.
func decoderFor(enc Encoding) *encoding.Decoder {
	switch enc {
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	case ISO8859_1:
		return charmap.ISO8859_1.NewDecoder()
	case ISO8859_15:
		return charmap.ISO8859_15.NewDecoder()
	case Windows1252:
		return charmap.Windows1252.NewDecoder()
	default:
		return nil
	}
}
