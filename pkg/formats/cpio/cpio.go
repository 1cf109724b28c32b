// Package cpio reads copy in and out (CPIO) archive files in the binary
// big/little-endian, portable ASCII (odc) and new ASCII (newc, crc) variants.
package cpio

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/schema"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Format identifies the CPIO variant an archive was written in.
type Format int

const (
	FormatBinaryBigEndian Format = iota
	FormatBinaryLittleEndian
	FormatPortableASCII
	FormatNewASCII
	FormatNewASCIIChecksum
)

func (f Format) String() string {
	switch f {
	case FormatBinaryBigEndian:
		return "bin-big-endian"
	case FormatBinaryLittleEndian:
		return "bin-little-endian"
	case FormatPortableASCII:
		return "odc"
	case FormatNewASCII:
		return "newc"
	case FormatNewASCIIChecksum:
		return "crc"
	}
	return "unknown"
}

// trailerPath marks the last entry of an archive.
const trailerPath = "TRAILER!!!"

var (
	sigBinaryBigEndian    = []byte{0x71, 0xc7}
	sigBinaryLittleEndian = []byte{0xc7, 0x71}
	sigPortableASCII      = []byte("070707")
	sigNewASCII           = []byte("070701")
	sigNewASCIIChecksum   = []byte("070702")
)

func binaryEntryFields() []schema.Field {
	names := []string{
		"signature", "device_number", "inode_number", "mode",
		"user_identifier", "group_identifier", "number_of_links",
		"special_device_number", "modification_time_upper",
		"modification_time_lower", "path_string_size",
		"file_size_upper", "file_size_lower",
	}
	fields := make([]schema.Field, len(names))
	for i, name := range names {
		fields[i] = schema.Field{Name: name, Kind: schema.Uint16}
	}
	return fields
}

func asciiEntryFields(widths map[string]int, order []string) []schema.Field {
	fields := make([]schema.Field, len(order))
	for i, name := range order {
		fields[i] = schema.Field{Name: name, Kind: schema.Bytes, Size: widths[name]}
	}
	return fields
}

var (
	binaryBigEndianEntry = schema.MustRegister(&schema.Schema{
		Name:   "cpio_binary_big_endian_file_entry",
		Order:  schema.BigEndian,
		Fields: binaryEntryFields(),
	})

	binaryLittleEndianEntry = schema.MustRegister(&schema.Schema{
		Name:   "cpio_binary_little_endian_file_entry",
		Order:  schema.LittleEndian,
		Fields: binaryEntryFields(),
	})

	// Portable ASCII entries hold 6-digit octal fields, 11 digits for the
	// modification time and file size.
	portableASCIIEntry = schema.MustRegister(&schema.Schema{
		Name:  "cpio_portable_ascii_file_entry",
		Order: schema.LittleEndian,
		Fields: asciiEntryFields(
			map[string]int{
				"signature": 6, "device_number": 6, "inode_number": 6,
				"mode": 6, "user_identifier": 6, "group_identifier": 6,
				"number_of_links": 6, "special_device_number": 6,
				"modification_time": 11, "path_string_size": 6,
				"file_size": 11,
			},
			[]string{
				"signature", "device_number", "inode_number", "mode",
				"user_identifier", "group_identifier", "number_of_links",
				"special_device_number", "modification_time",
				"path_string_size", "file_size",
			}),
	})

	// New ASCII entries hold 8-digit hexadecimal fields.
	newASCIIEntry = schema.MustRegister(&schema.Schema{
		Name:  "cpio_new_ascii_file_entry",
		Order: schema.LittleEndian,
		Fields: asciiEntryFields(
			map[string]int{
				"signature": 6, "inode_number": 8, "mode": 8,
				"user_identifier": 8, "group_identifier": 8,
				"number_of_links": 8, "modification_time": 8,
				"file_size": 8, "device_major_number": 8,
				"device_minor_number": 8, "special_device_major_number": 8,
				"special_device_minor_number": 8, "path_string_size": 8,
				"checksum": 8,
			},
			[]string{
				"signature", "inode_number", "mode", "user_identifier",
				"group_identifier", "number_of_links", "modification_time",
				"file_size", "device_major_number", "device_minor_number",
				"special_device_major_number", "special_device_minor_number",
				"path_string_size", "checksum",
			}),
	})
)

// FileEntry is one archive member. DataOffset and DataSize locate the member
// data within the archive image.
type FileEntry struct {
	Path             string
	InodeNumber      uint64
	Mode             uint64
	UserIdentifier   uint64
	GroupIdentifier  uint64
	ModificationTime uint64
	DataOffset       int
	DataSize         int

	// Size is the full entry footprint: header, path, padding and data.
	Size int
}

// ArchiveFile is an open CPIO archive.
type ArchiveFile struct {
	data    []byte
	unmap   func() error
	warn    *types.WarningList
	entries []*FileEntry
	byPath  map[string]*FileEntry
	closed  bool

	Format Format
}

// Open memory-maps and reads the archive at path.
func Open(path string, opts types.OpenOptions) (*ArchiveFile, error) {
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

// OpenBytes reads an archive from a complete in-memory image. All file
// entries up to the trailer are decoded eagerly.
func OpenBytes(data []byte, opts types.OpenOptions) (*ArchiveFile, error) {
	f := &ArchiveFile{data: data, byPath: map[string]*FileEntry{}}
	if opts.CollectWarnings {
		f.warn = &types.WarningList{}
	}

	switch {
	case bytes.HasPrefix(data, sigBinaryBigEndian):
		f.Format = FormatBinaryBigEndian
	case bytes.HasPrefix(data, sigBinaryLittleEndian):
		f.Format = FormatBinaryLittleEndian
	case bytes.HasPrefix(data, sigPortableASCII):
		f.Format = FormatPortableASCII
	case bytes.HasPrefix(data, sigNewASCII):
		f.Format = FormatNewASCII
	case bytes.HasPrefix(data, sigNewASCIIChecksum):
		f.Format = FormatNewASCIIChecksum
	default:
		return nil, fmt.Errorf("cpio: %w", types.ErrBadSignature)
	}

	if err := f.readFileEntries(); err != nil {
		return nil, err
	}
	return f, nil
}

// readFileEntries walks entries from offset zero until the trailer entry or
// the end of the image. Duplicate paths keep the first occurrence.
func (f *ArchiveFile) readFileEntries() error {
	offset := 0
	for offset < len(f.data) {
		entry, err := f.readFileEntry(offset)
		if err != nil {
			return fmt.Errorf("file entry at offset %d: %w", offset, err)
		}
		offset += entry.Size
		if entry.Path == trailerPath {
			break
		}
		if _, dup := f.byPath[entry.Path]; dup {
			continue
		}
		f.entries = append(f.entries, entry)
		f.byPath[entry.Path] = entry
	}
	return nil
}

func (f *ArchiveFile) readFileEntry(offset int) (*FileEntry, error) {
	var entrySchema *schema.Schema
	switch f.Format {
	case FormatBinaryBigEndian:
		entrySchema = binaryBigEndianEntry
	case FormatBinaryLittleEndian:
		entrySchema = binaryLittleEndianEntry
	case FormatPortableASCII:
		entrySchema = portableASCIIEntry
	default:
		entrySchema = newASCIIEntry
	}

	cursor := schema.NewCursorAt(f.data, offset)
	st, err := schema.Read(cursor, entrySchema, f.warn)
	if err != nil {
		return nil, err
	}

	values, err := f.entryValues(st)
	if err != nil {
		return nil, err
	}

	entry := &FileEntry{
		InodeNumber:      values["inode_number"],
		Mode:             values["mode"],
		UserIdentifier:   values["user_identifier"],
		GroupIdentifier:  values["group_identifier"],
		ModificationTime: values["modification_time"],
		DataSize:         int(values["file_size"]),
	}

	pathSize := int(values["path_string_size"])
	headerEnd := offset + st.Size()
	path, err := readPathString(f.data, headerEnd, pathSize)
	if err != nil {
		return nil, err
	}
	entry.Path = path

	entry.DataOffset = headerEnd + pathSize + f.alignmentPadding(headerEnd+pathSize)
	entry.Size = entry.DataOffset - offset + entry.DataSize

	// New ASCII data is padded to the next 4-byte boundary.
	if f.Format == FormatNewASCII || f.Format == FormatNewASCIIChecksum {
		entry.Size += f.alignmentPadding(entry.DataOffset + entry.DataSize)
	}
	return entry, nil
}

// entryValues normalizes a decoded header to integer values: binary entries
// recombine split 32-bit fields, ASCII entries convert octal or hexadecimal
// digit runs.
func (f *ArchiveFile) entryValues(st *schema.Structure) (map[string]uint64, error) {
	values := map[string]uint64{}
	switch f.Format {
	case FormatBinaryBigEndian, FormatBinaryLittleEndian:
		for _, name := range st.Names() {
			v, _ := st.Uint(name)
			values[name] = v
		}
		values["modification_time"] = values["modification_time_upper"]<<16 |
			values["modification_time_lower"]
		values["file_size"] = values["file_size_upper"]<<16 | values["file_size_lower"]
		return values, nil
	case FormatPortableASCII:
		return convertASCIIFields(st, 8)
	default:
		return convertASCIIFields(st, 16)
	}
}

func convertASCIIFields(st *schema.Structure, base int) (map[string]uint64, error) {
	values := map[string]uint64{}
	for _, name := range st.Names() {
		if name == "signature" {
			continue
		}
		raw, _ := st.Bytes(name)
		digits := string(raw)
		v, err := strconv.ParseUint(digits, base, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s value %q is not base-%d: %w",
				name, digits, base, types.ErrSchema)
		}
		values[name] = v
	}
	return values, nil
}

// readPathString reads and trims the NUL-terminated entry path.
func readPathString(data []byte, offset, size int) (string, error) {
	if offset+size > len(data) {
		return "", fmt.Errorf("path string (%d bytes): %w", size, types.ErrTruncated)
	}
	path := string(data[offset : offset+size])
	path, _, _ = strings.Cut(path, "\x00")
	return path, nil
}

// alignmentPadding returns the padding after an absolute offset: binary
// variants align to 2 bytes, new ASCII variants to 4, odc not at all.
func (f *ArchiveFile) alignmentPadding(offset int) int {
	var align int
	switch f.Format {
	case FormatBinaryBigEndian, FormatBinaryLittleEndian:
		align = 2
	case FormatNewASCII, FormatNewASCIIChecksum:
		align = 4
	default:
		return 0
	}
	if rem := offset % align; rem > 0 {
		return align - rem
	}
	return 0
}

// FileEntries returns the decoded entries in archive order, excluding the
// trailer.
func (f *ArchiveFile) FileEntries() []*FileEntry {
	return f.entries
}

// FileEntryByPath retrieves a file entry by its exact path.
func (f *ArchiveFile) FileEntryByPath(path string) (*FileEntry, bool) {
	entry, ok := f.byPath[path]
	return entry, ok
}

// EntryData returns the member data of an entry.
func (f *ArchiveFile) EntryData(entry *FileEntry) ([]byte, error) {
	if f.closed {
		return nil, fmt.Errorf("cpio: %w", types.ErrClosed)
	}
	if entry.DataOffset+entry.DataSize > len(f.data) {
		return nil, fmt.Errorf("entry %s data (%d bytes at %d): %w",
			entry.Path, entry.DataSize, entry.DataOffset, types.ErrTruncated)
	}
	return f.data[entry.DataOffset : entry.DataOffset+entry.DataSize], nil
}

// Warnings returns the anomalies tolerated while decoding.
func (f *ArchiveFile) Warnings() []types.Warning {
	return f.warn.All()
}

// Close releases the archive.
func (f *ArchiveFile) Close() error {
	if f.closed {
		return fmt.Errorf("cpio: %w", types.ErrClosed)
	}
	f.closed = true
	f.entries = nil
	f.byPath = nil
	if f.unmap != nil {
		return f.unmap()
	}
	return nil
}
