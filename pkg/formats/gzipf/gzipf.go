// Package gzipf reads gzip files member by member, exposing the header
// fields and validating each member's checksum trailer.
package gzipf

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/schema"
	"github.com/artifactkit/artifactkit/pkg/types"
)

const (
	gzipSignature            = 0x8b1f
	compressionMethodDeflate = 8
)

// Member header flags.
const (
	FlagText    = 0x01
	FlagHCRC    = 0x02
	FlagExtra   = 0x04
	FlagName    = 0x08
	FlagComment = 0x10
)

var memberHeader = schema.MustRegister(&schema.Schema{
	Name:  "gzip_member_header",
	Order: schema.LittleEndian,
	Fields: []schema.Field{
		{Name: "signature", Kind: schema.Uint16},
		{Name: "compression_method", Kind: schema.Uint8},
		{Name: "flags", Kind: schema.Uint8},
		{Name: "modification_time", Kind: schema.Uint32},
		{Name: "compression_flags", Kind: schema.Uint8},
		{Name: "operating_system", Kind: schema.Uint8},
	},
})

// Member is one decoded gzip member.
type Member struct {
	Offset           int
	Flags            uint8
	ModificationTime uint32
	OperatingSystem  uint8
	Name             string
	Comment          string
	ExtraField       []byte

	// Checksum and UncompressedSize echo the member footer. Both are
	// validated against the decompressed data.
	Checksum         uint32
	UncompressedSize uint32

	Data []byte
}

// File is an open gzip file.
type File struct {
	members []*Member
	unmap   func() error
	closed  bool
}

// Open memory-maps and reads the gzip file at path.
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

// OpenBytes reads all members from a complete in-memory image.
func OpenBytes(data []byte, opts types.OpenOptions) (*File, error) {
	f := &File{}
	offset := 0
	for offset < len(data) {
		member, next, err := readMember(data, offset)
		if err != nil {
			return nil, fmt.Errorf("gzip member at offset %d: %w", offset, err)
		}
		f.members = append(f.members, member)
		offset = next
	}
	if len(f.members) == 0 {
		return nil, fmt.Errorf("gzip: empty file: %w", types.ErrTruncated)
	}
	return f, nil
}

// readMember decodes one member and returns the offset past its footer.
func readMember(data []byte, offset int) (*Member, int, error) {
	cursor := schema.NewCursorAt(data, offset)
	st, err := schema.Read(cursor, memberHeader, nil)
	if err != nil {
		return nil, 0, err
	}
	num := func(name string) uint64 {
		v, _ := st.Uint(name)
		return v
	}
	if sig := num("signature"); sig != gzipSignature {
		return nil, 0, fmt.Errorf("signature 0x%04x: %w", sig, types.ErrBadSignature)
	}
	if method := num("compression_method"); method != compressionMethodDeflate {
		return nil, 0, fmt.Errorf("compression method %d: %w", method, types.ErrUnsupported)
	}

	member := &Member{
		Offset:           offset,
		Flags:            uint8(num("flags")),
		ModificationTime: uint32(num("modification_time")),
		OperatingSystem:  uint8(num("operating_system")),
	}

	if member.Flags&FlagExtra != 0 {
		size, err := cursor.ReadFixed(2)
		if err != nil {
			return nil, 0, fmt.Errorf("extra field size: %w", err)
		}
		if member.ExtraField, err = cursor.ReadFixed(int(buf.U16LE(size))); err != nil {
			return nil, 0, fmt.Errorf("extra field: %w", err)
		}
	}
	if member.Flags&FlagName != 0 {
		member.Name = string(cursor.ReadCString())
	}
	if member.Flags&FlagComment != 0 {
		member.Comment = string(cursor.ReadCString())
	}
	if member.Flags&FlagHCRC != 0 {
		if _, err := cursor.ReadFixed(2); err != nil {
			return nil, 0, fmt.Errorf("header crc16: %w", err)
		}
	}

	// bytes.Reader implements io.ByteReader, so the decompressor stops at
	// the exact end of the deflate stream.
	compressed := bytes.NewReader(data[cursor.Offset():])
	fr := flate.NewReader(compressed)
	member.Data, err = io.ReadAll(fr)
	if cerr := fr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, 0, fmt.Errorf("deflate stream: %v: %w", err, types.ErrDecompress)
	}
	footerOffset := cursor.Offset() + int(compressed.Size()) - compressed.Len()

	footer, ok := buf.Slice(data, footerOffset, 8)
	if !ok {
		return nil, 0, fmt.Errorf("member footer: %w", types.ErrTruncated)
	}
	member.Checksum = buf.U32LE(footer)
	member.UncompressedSize = buf.U32LE(footer[4:])

	if sum := crc32.ChecksumIEEE(member.Data); sum != member.Checksum {
		return nil, 0, fmt.Errorf("checksum 0x%08x, footer declares 0x%08x: %w",
			sum, member.Checksum, types.ErrDecompress)
	}
	if size := uint32(len(member.Data)); size != member.UncompressedSize {
		return nil, 0, fmt.Errorf("uncompressed size %d, footer declares %d: %w",
			size, member.UncompressedSize, types.ErrSizeMismatch)
	}
	return member, footerOffset + 8, nil
}

// Members returns the decoded members in file order.
func (f *File) Members() []*Member {
	return f.members
}

// Data concatenates the decompressed data of all members.
func (f *File) Data() []byte {
	var out []byte
	for _, m := range f.members {
		out = append(out, m.Data...)
	}
	return out
}

// Close releases the file.
func (f *File) Close() error {
	if f.closed {
		return fmt.Errorf("gzip: %w", types.ErrClosed)
	}
	f.closed = true
	f.members = nil
	if f.unmap != nil {
		return f.unmap()
	}
	return nil
}
