package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Structure is the immutable result of one Read call: ordered field values
// plus the total byte length consumed.
type Structure struct {
	schema *Schema
	names  []string
	values map[string]any
	size   int
}

// Size reports the total bytes the structure consumed.
func (st *Structure) Size() int { return st.size }

// Names returns field names in declaration order.
func (st *Structure) Names() []string { return st.names }

// Value returns the raw decoded value for name.
func (st *Structure) Value(name string) (any, bool) {
	v, ok := st.values[name]
	return v, ok
}

// Uint returns an integer field's value. Reports false for missing or
// non-integer fields.
func (st *Structure) Uint(name string) (uint64, bool) {
	v, ok := st.values[name].(uint64)
	return v, ok
}

// Bytes returns a Bytes or Stream field's value.
func (st *Structure) Bytes(name string) ([]byte, bool) {
	v, ok := st.values[name].([]byte)
	return v, ok
}

// Str returns a CString field's decoded text.
func (st *Structure) Str(name string) (string, bool) {
	v, ok := st.values[name].(string)
	return v, ok
}

// Sub returns a nested structure field.
func (st *Structure) Sub(name string) (*Structure, bool) {
	v, ok := st.values[name].(*Structure)
	return v, ok
}

// Slice returns an Array field's elements.
func (st *Structure) Slice(name string) ([]*Structure, bool) {
	v, ok := st.values[name].([]*Structure)
	return v, ok
}

// Formatter returns the debug formatter declared for name in the structure's
// schema. Fields without one render decimal.
func (st *Structure) Formatter(name string) Formatter {
	for _, f := range st.schema.Fields {
		if f.Name == name {
			return f.Format
		}
	}
	return Formatter{}
}

// Read decodes one structure per plan s starting at the cursor position.
// Each field resolves its size from constants or already-decoded sibling
// values, then consumes exactly that many bytes; the cursor ends exactly
// sum-of-field-sizes past where it began. Text that fails its declared
// encoding decodes with replacement characters and a warning instead of an
// error.
func Read(c *Cursor, s *Schema, warn *types.WarningList) (*Structure, error) {
	start := c.Offset()
	st := &Structure{
		schema: s,
		names:  make([]string, 0, len(s.Fields)),
		values: make(map[string]any, len(s.Fields)),
	}
	for _, f := range s.Fields {
		v, err := readField(c, s, st, f, warn)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		st.names = append(st.names, f.Name)
		st.values[f.Name] = v
	}
	st.size = c.Offset() - start
	return st, nil
}

func readField(c *Cursor, s *Schema, st *Structure, f Field, warn *types.WarningList) (any, error) {
	switch f.Kind {
	case Uint8:
		b, err := c.ReadFixed(1)
		if err != nil {
			return nil, err
		}
		return uint64(b[0]), nil
	case Uint16:
		b, err := c.ReadFixed(2)
		if err != nil {
			return nil, err
		}
		if s.Order == BigEndian {
			return uint64(buf.U16BE(b)), nil
		}
		return uint64(buf.U16LE(b)), nil
	case Uint32:
		b, err := c.ReadFixed(4)
		if err != nil {
			return nil, err
		}
		if s.Order == BigEndian {
			return uint64(buf.U32BE(b)), nil
		}
		return uint64(buf.U32LE(b)), nil
	case Uint64:
		b, err := c.ReadFixed(8)
		if err != nil {
			return nil, err
		}
		if s.Order == BigEndian {
			return buf.U64BE(b), nil
		}
		return buf.U64LE(b), nil
	case Bytes:
		b, err := c.ReadFixed(f.Size)
		if err != nil {
			return nil, err
		}
		return b, nil
	case CString:
		off := uint64(c.Offset())
		var raw []byte
		if f.Encoding == UTF16LE {
			raw = c.ReadCString16()
		} else {
			raw = c.ReadCString()
		}
		text, clean := decodeText(raw, f.Encoding)
		if !clean {
			warn.Add(off, s.Name+"."+f.Name, "undecodable bytes replaced")
		}
		return text, nil
	case Stream:
		n, err := resolveCount(st, f)
		if err != nil {
			return nil, err
		}
		b, err := c.ReadFixed(n)
		if err != nil {
			return nil, err
		}
		return b, nil
	case Struct:
		return Read(c, f.Sub, warn)
	case Array:
		n, err := resolveCount(st, f)
		if err != nil {
			return nil, err
		}
		// Each element consumes at least one byte, so a count larger than
		// the remaining bytes cannot decode; cap the preallocation at what
		// the buffer can still hold.
		capacity := n
		if r := c.Remaining(); capacity > r {
			capacity = r
		}
		elems := make([]*Structure, 0, capacity)
		for i := 0; i < n; i++ {
			e, err := Read(c, f.Sub, warn)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, e)
		}
		return elems, nil
	default:
		return nil, fmt.Errorf("unknown field kind %d: %w", f.Kind, types.ErrSchema)
	}
}

func resolveCount(st *Structure, f Field) (int, error) {
	if f.CountRef == "" {
		return f.Count, nil
	}
	v, ok := st.Uint(f.CountRef)
	if !ok {
		return 0, fmt.Errorf("count reference %q unresolved: %w", f.CountRef, types.ErrSchema)
	}
	if v > uint64(int(^uint(0)>>1)) {
		return 0, fmt.Errorf("count reference %q = %d overflows: %w", f.CountRef, v, types.ErrTruncated)
	}
	return int(v), nil
}

// decodeText decodes raw under enc, substituting U+FFFD for undecodable
// bytes. The second result reports whether the text decoded cleanly.
func decodeText(raw []byte, enc Encoding) (string, bool) {
	switch enc {
	case UTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(raw)
		if err != nil {
			return strings.ToValidUTF8(string(raw), "�"), false
		}
		s := string(out)
		return s, !strings.ContainsRune(s, utf8.RuneError)
	case CP1252:
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return strings.ToValidUTF8(string(raw), "�"), false
		}
		s := string(out)
		return s, !strings.ContainsRune(s, utf8.RuneError)
	default: // ASCII
		clean := true
		var sb strings.Builder
		for _, b := range raw {
			if b < 0x80 {
				sb.WriteByte(b)
			} else {
				sb.WriteRune(utf8.RuneError)
				clean = false
			}
		}
		return sb.String(), clean
	}
}
