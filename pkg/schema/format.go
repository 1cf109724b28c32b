package schema

import (
	"fmt"
	"time"
)

// FormatterKind selects how a decoded value renders in debug output.
type FormatterKind int

const (
	FormatDecimal FormatterKind = iota
	FormatHex
	FormatPosixTime
	FormatFiletime
	FormatCustom
)

// Formatter is a closed tagged variant resolved at schema construction; debug
// printing never looks methods up by name at decode time.
type Formatter struct {
	Kind  FormatterKind
	Width int                // hex digit width, 0 = natural
	Fn    func(uint64) string // FormatCustom only
}

// Hex returns a fixed-width hexadecimal formatter.
func Hex(width int) Formatter { return Formatter{Kind: FormatHex, Width: width} }

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01 and
// the Unix epoch.
const filetimeEpochDelta = 116444736000000000

// FormatValue renders v per the formatter.
func (f Formatter) FormatValue(v uint64) string {
	switch f.Kind {
	case FormatHex:
		if f.Width > 0 {
			return fmt.Sprintf("0x%0*x", f.Width, v)
		}
		return fmt.Sprintf("0x%x", v)
	case FormatPosixTime:
		return time.Unix(int64(v), 0).UTC().Format(time.RFC3339)
	case FormatFiletime:
		if v == 0 {
			return "not set"
		}
		ns := (int64(v) - filetimeEpochDelta) * 100
		return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
	case FormatCustom:
		if f.Fn != nil {
			return f.Fn(v)
		}
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%d", v)
	}
}
