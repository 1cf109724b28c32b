// Package hexdump renders byte buffers as offset-prefixed hexadecimal rows
// for debug output.
package hexdump

import (
	"fmt"
	"io"
	"strings"

	"github.com/artifactkit/artifactkit/pkg/schema"
)

const rowSize = 16

// Write renders data as rows of 16 bytes with an offset column and an ASCII
// column. Consecutive identical rows collapse into a single "..." line.
func Write(w io.Writer, data []byte) error {
	var prevRow []byte
	elided := false
	for off := 0; off < len(data); off += rowSize {
		end := off + rowSize
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		if prevRow != nil && string(row) == string(prevRow) {
			if !elided {
				if _, err := fmt.Fprintln(w, "..."); err != nil {
					return err
				}
				elided = true
			}
			continue
		}
		prevRow = row
		elided = false

		if _, err := fmt.Fprintln(w, formatRow(off, row)); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(off int, row []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%08x  ", off)
	for i := 0; i < rowSize; i++ {
		if i == rowSize/2 {
			b.WriteByte(' ')
		}
		if i < len(row) {
			fmt.Fprintf(&b, "%02x ", row[i])
		} else {
			b.WriteString("   ")
		}
	}
	b.WriteByte(' ')
	for _, c := range row {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// WriteValue renders one "name : value" line the way structure dumps print
// decoded fields.
func WriteValue(w io.Writer, name, value string) error {
	_, err := fmt.Fprintf(w, "%-24s: %s\n", name, value)
	return err
}

// WriteStructure renders every field of a decoded structure. Integers render
// through the formatter their schema field declares.
func WriteStructure(w io.Writer, st *schema.Structure) error {
	for _, name := range st.Names() {
		var value string
		if raw, ok := st.Bytes(name); ok {
			if len(raw) > rowSize {
				raw = raw[:rowSize]
			}
			value = fmt.Sprintf("% x", raw)
		} else if v, ok := st.Uint(name); ok {
			value = st.Formatter(name).FormatValue(v)
		} else if s, ok := st.Str(name); ok {
			value = s
		} else {
			continue
		}
		if err := WriteValue(w, name, value); err != nil {
			return err
		}
	}
	return nil
}
