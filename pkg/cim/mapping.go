// Package cim decodes WMI CIM repository files: the page-number mapping
// files (*.map), the index binary tree (Index.btr) and the object store
// (Objects.data). Pages are addressed by logical page number and resolved to
// physical pages through a mapping file, so pages can move on disk without
// invalidating references held elsewhere.
package cim

import (
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// PageSize is the fixed page size of index and objects data files.
const PageSize = 8192

// PageUnavailable marks a mapping entry with no physical page.
const PageUnavailable = 0xffffffff

const (
	mapHeaderSignature = 0x0000abcd
	mapFooterSignature = 0x0000dcba
)

// MappingFile maps logical page numbers to physical page numbers. The table
// loads once and is immutable for the lifetime of the repository handle.
type MappingFile struct {
	FormatVersion uint32
	NumberOfPages uint32

	mappings []uint32
	size     int
}

// ParseMappingFile decodes one mapping stream: header, page number table,
// unknown entries table, footer. Mapping files may be concatenated; Size
// reports where this one ends.
func ParseMappingFile(data []byte) (*MappingFile, error) {
	hdr, ok := buf.Slice(data, 0, 12)
	if !ok {
		return nil, fmt.Errorf("mapping header: %w", types.ErrTruncated)
	}
	if sig := buf.U32LE(hdr); sig != mapHeaderSignature {
		return nil, fmt.Errorf("mapping header signature 0x%08x: %w", sig, types.ErrBadSignature)
	}
	m := &MappingFile{
		FormatVersion: buf.U32LE(hdr[4:]),
		NumberOfPages: buf.U32LE(hdr[8:]),
	}
	off := 12

	mappings, off, err := readPageNumberTable(data, off)
	if err != nil {
		return nil, fmt.Errorf("mappings table: %w", err)
	}
	m.mappings = mappings

	// A second table of unknown entries precedes the footer.
	_, off, err = readPageNumberTable(data, off)
	if err != nil {
		return nil, fmt.Errorf("unknown entries table: %w", err)
	}

	footer, ok := buf.Slice(data, off, 4)
	if !ok {
		return nil, fmt.Errorf("mapping footer: %w", types.ErrTruncated)
	}
	if sig := buf.U32LE(footer); sig != mapFooterSignature {
		return nil, fmt.Errorf("mapping footer signature 0x%08x: %w", sig, types.ErrBadSignature)
	}
	m.size = off + 4
	return m, nil
}

// readPageNumberTable reads a 32-bit entry count followed by that many
// 32-bit page numbers.
func readPageNumberTable(data []byte, off int) ([]uint32, int, error) {
	countData, ok := buf.Slice(data, off, 4)
	if !ok {
		return nil, 0, fmt.Errorf("entry count at %d: %w", off, types.ErrTruncated)
	}
	count := int(buf.U32LE(countData))
	off += 4

	end, err := buf.CheckListBounds(len(data), off, count, 4)
	if err != nil {
		return nil, 0, fmt.Errorf("page table: %w", err)
	}
	entries := make([]uint32, 0, count)
	for ; off < end; off += 4 {
		entries = append(entries, buf.U32LE(data[off:]))
	}
	return entries, off, nil
}

// Size reports the byte length of the decoded mapping stream.
func (m *MappingFile) Size() int { return m.size }

// Len reports the number of mapping entries.
func (m *MappingFile) Len() int { return len(m.mappings) }

// Map resolves a logical page number to a physical one. The second result
// is false when the entry is absent or marked unavailable; repeated lookups
// of the same logical number always return the same answer.
func (m *MappingFile) Map(logical uint32) (uint32, bool) {
	if int(logical) >= len(m.mappings) {
		return 0, false
	}
	physical := m.mappings[logical]
	if physical == PageUnavailable {
		return 0, false
	}
	return physical, true
}
