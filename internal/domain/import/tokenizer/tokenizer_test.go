package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *Tokenizer) [][]string {
	var rows [][]string
	for {
		row, ok := t.Next()
		if !ok {
			return rows
		}
		rows = append(rows, row)
	}
}

func TestTokenizer_Next(t *testing.T) {
	t.Run("splits on configured delimiter", func(t *testing.T) {
		tk := New(strings.NewReader("date;amount;partner\n01.02.2024;1,50;Shop"), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 2)
		assert.Equal(t, []string{"date", "amount", "partner"}, rows[0])
		assert.Equal(t, []string{"01.02.2024", "1,50", "Shop"}, rows[1])
	})

	t.Run("honors quoted delimiters and doubled quotes", func(t *testing.T) {
		tk := New(strings.NewReader(`"a;b";"he said ""hi""";c`), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 1)
		assert.Equal(t, []string{"a;b", `he said "hi"`, "c"}, rows[0])
	})

	t.Run("supports non-standard quote character", func(t *testing.T) {
		tk := New(strings.NewReader("'x;y';z"), ';', '\'')
		rows := readAll(tk)

		require.Len(t, rows, 1)
		assert.Equal(t, []string{"x;y", "z"}, rows[0])
	})

	t.Run("empty quote char disables quoting", func(t *testing.T) {
		tk := New(strings.NewReader(`"a;b`), ';', 0)
		rows := readAll(tk)

		require.Len(t, rows, 1)
		assert.Equal(t, []string{`"a`, "b"}, rows[0])
	})

	t.Run("quoted field spans lines", func(t *testing.T) {
		tk := New(strings.NewReader("\"first\npart\";b\nc;d"), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 2)
		// The embedded line break is a control character and gets stripped.
		assert.Equal(t, []string{"firstpart", "b"}, rows[0])
		assert.Equal(t, []string{"c", "d"}, rows[1])
	})

	t.Run("skips blank lines", func(t *testing.T) {
		tk := New(strings.NewReader("a;b\n\n   \nc;d\n"), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 2)
		assert.Equal(t, []string{"a", "b"}, rows[0])
		assert.Equal(t, []string{"c", "d"}, rows[1])
	})

	t.Run("recovers malformed quoting by raw re-split", func(t *testing.T) {
		// Unterminated quote on the final line cannot be completed; the raw
		// re-split still yields the delimited cells.
		tk := New(strings.NewReader("a;b\nbroken \"cell;next"), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 2)
		assert.Equal(t, []string{`broken "cell`, "next"}, rows[1])
		assert.Error(t, tk.Err())
	})

	t.Run("stray quote loses only its own row", func(t *testing.T) {
		// The unterminated quote pulls later lines in as continuations; they
		// must come back out as ordinary rows once recovery gives up.
		var b strings.Builder
		b.WriteString("a;\"unterminated\n")
		for _, r := range []string{"r1;1", "r2;2", "r3;3", "r4;4", "r5;5"} {
			b.WriteString(r + "\n")
		}
		tk := New(strings.NewReader(b.String()), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 6)
		assert.Equal(t, []string{"a", "unterminated"}, rows[0])
		assert.Equal(t, []string{"r1", "1"}, rows[1])
		assert.Equal(t, []string{"r5", "5"}, rows[5])
		assert.Error(t, tk.Err())
	})

	t.Run("continuation limit replays the consumed lines", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("x;\"never closes\n")
		for i := 0; i < 20; i++ {
			b.WriteString("good;row\n")
		}
		tk := New(strings.NewReader(b.String()), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 21)
		assert.Equal(t, []string{"x", "never closes"}, rows[0])
		for _, row := range rows[1:] {
			assert.Equal(t, []string{"good", "row"}, row)
		}
	})

	t.Run("trims and strips control characters", func(t *testing.T) {
		tk := New(strings.NewReader("  a\x01b  ;\tc\x7F  "), ';', '"')
		rows := readAll(tk)

		require.Len(t, rows, 1)
		assert.Equal(t, []string{"ab", "c"}, rows[0])
	})

	t.Run("end of stream yields no row not an error", func(t *testing.T) {
		tk := New(strings.NewReader(""), ';', '"')
		row, ok := tk.Next()

		assert.False(t, ok)
		assert.Nil(t, row)
		assert.NoError(t, tk.Err())

		// Next stays terminal once exhausted.
		_, ok = tk.Next()
		assert.False(t, ok)
	})

	t.Run("cell count matches header for any delimiter quote pair", func(t *testing.T) {
		for _, tc := range []struct {
			delimiter, quote rune
		}{
			{';', '"'}, {',', '"'}, {'\t', '\''}, {'|', 0},
		} {
			d := string(tc.delimiter)
			data := "h1" + d + "h2" + d + "h3\nv1" + d + "v2" + d + "v3"
			tk := New(strings.NewReader(data), tc.delimiter, tc.quote)
			rows := readAll(tk)

			require.Len(t, rows, 2)
			assert.Len(t, rows[1], len(rows[0]))
		}
	})
}
