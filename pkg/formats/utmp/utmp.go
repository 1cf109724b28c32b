// Package utmp reads Linux libc6 utmp login record files: fixed 384-byte
// entries holding terminal, user, host and timestamp values.
package utmp

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/schema"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Entry types.
const (
	TypeEmpty        = 0
	TypeRunLevel     = 1
	TypeBootTime     = 2
	TypeNewTime      = 3
	TypeOldTime      = 4
	TypeInitProcess  = 5
	TypeLoginProcess = 6
	TypeUserProcess  = 7
	TypeDeadProcess  = 8
	TypeAccounting   = 9
)

// EntrySize is the on-disk size of one libc6 entry.
const EntrySize = 384

var entrySchema = schema.MustRegister(&schema.Schema{
	Name:  "utmp_entry",
	Order: schema.LittleEndian,
	Fields: []schema.Field{
		{Name: "type", Kind: schema.Uint32},
		{Name: "pid", Kind: schema.Uint32},
		{Name: "terminal", Kind: schema.Bytes, Size: 32},
		{Name: "terminal_identifier", Kind: schema.Uint32, Format: schema.Hex(8)},
		{Name: "username", Kind: schema.Bytes, Size: 32},
		{Name: "hostname", Kind: schema.Bytes, Size: 256},
		{Name: "termination_status", Kind: schema.Uint16},
		{Name: "exit_status", Kind: schema.Uint16},
		{Name: "session", Kind: schema.Uint32},
		{Name: "timestamp", Kind: schema.Uint32, Format: schema.Formatter{Kind: schema.FormatPosixTime}},
		{Name: "microseconds", Kind: schema.Uint32},
		{Name: "ip_address", Kind: schema.Bytes, Size: 16},
		{Name: "unknown1", Kind: schema.Bytes, Size: 20},
	},
})

// Entry is one login record.
type Entry struct {
	Type               uint32
	PID                uint32
	Terminal           string
	TerminalIdentifier uint32
	Username           string
	Hostname           string
	TerminationStatus  uint16
	ExitStatus         uint16
	Session            uint32
	Timestamp          uint32
	Microseconds       uint32
	IPAddress          netip.Addr
}

// File is an open utmp file.
type File struct {
	entries    []*Entry
	structures []*schema.Structure
	unmap      func() error
	warn       *types.WarningList
	closed     bool
}

// Open memory-maps and reads the utmp file at path.
func Open(path string, opts types.OpenOptions) (*File, error) {
	data, unmap, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	f, err := OpenBytes(data, opts)
	if err != nil {
		unmap()
		return nil, err
	}
	f.unmap = unmap
	return f, nil
}

// OpenBytes reads a utmp file from a complete in-memory image. The image
// size must be a multiple of the entry size unless Tolerant is set, in which
// case a truncated trailing entry is dropped.
func OpenBytes(data []byte, opts types.OpenOptions) (*File, error) {
	f := &File{}
	if opts.CollectWarnings {
		f.warn = &types.WarningList{}
	}

	if rem := len(data) % EntrySize; rem != 0 {
		if !opts.Tolerant {
			return nil, fmt.Errorf("utmp: %d trailing bytes: %w", rem, types.ErrTruncated)
		}
		f.warn.Add(uint64(len(data)-rem), "utmp", fmt.Sprintf("%d trailing bytes dropped", rem))
		data = data[:len(data)-rem]
	}

	cursor := schema.NewCursor(data)
	for i := 0; i < len(data)/EntrySize; i++ {
		st, err := schema.Read(cursor, entrySchema, f.warn)
		if err != nil {
			return nil, fmt.Errorf("utmp entry %d: %w", i, err)
		}
		f.entries = append(f.entries, newEntry(st))
		f.structures = append(f.structures, st)
	}
	return f, nil
}

func newEntry(st *schema.Structure) *Entry {
	num := func(name string) uint64 {
		v, _ := st.Uint(name)
		return v
	}
	raw := func(name string) []byte {
		b, _ := st.Bytes(name)
		return b
	}
	return &Entry{
		Type:               uint32(num("type")),
		PID:                uint32(num("pid")),
		Terminal:           decodeString(raw("terminal")),
		TerminalIdentifier: uint32(num("terminal_identifier")),
		Username:           decodeString(raw("username")),
		Hostname:           decodeString(raw("hostname")),
		TerminationStatus:  uint16(num("termination_status")),
		ExitStatus:         uint16(num("exit_status")),
		Session:            uint32(num("session")),
		Timestamp:          uint32(num("timestamp")),
		Microseconds:       uint32(num("microseconds")),
		IPAddress:          decodeIPAddress(raw("ip_address")),
	}
}

// decodeString trims at the first NUL and substitutes the replacement
// character for invalid UTF-8 so corrupt entries still render.
func decodeString(b []byte) string {
	s := string(b)
	s, _, _ = strings.Cut(s, "\x00")
	return strings.ToValidUTF8(s, "�")
}

// decodeIPAddress treats an address whose last 12 bytes are zero as IPv4.
func decodeIPAddress(b []byte) netip.Addr {
	var addr16 [16]byte
	copy(addr16[:], b)
	for _, v := range addr16[4:] {
		if v != 0 {
			return netip.AddrFrom16(addr16)
		}
	}
	var addr4 [4]byte
	copy(addr4[:], addr16[:4])
	return netip.AddrFrom4(addr4)
}

// Entries returns the decoded entries in file order.
func (f *File) Entries() []*Entry {
	return f.entries
}

// EntryStructure returns the raw decoded structure behind entry i, with its
// per-field debug formatters attached.
func (f *File) EntryStructure(i int) *schema.Structure {
	return f.structures[i]
}

// Warnings returns the anomalies tolerated while decoding.
func (f *File) Warnings() []types.Warning {
	return f.warn.All()
}

// Close releases the file.
func (f *File) Close() error {
	if f.closed {
		return fmt.Errorf("utmp: %w", types.ErrClosed)
	}
	f.closed = true
	f.entries = nil
	f.structures = nil
	if f.unmap != nil {
		return f.unmap()
	}
	return nil
}
