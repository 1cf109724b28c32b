package cim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

const objectDescriptorSize = 16

// ObjectDescriptor locates one object record within an objects data page.
//
// Offset  Size  Field
// 0x00    4     record identifier
// 0x04    4     data offset relative to the page start
// 0x08    4     data size
// 0x0c    4     data checksum
type ObjectDescriptor struct {
	Identifier uint32
	DataOffset uint32
	DataSize   uint32
	Checksum   uint32
}

// ObjectRecord is one resolved object record.
type ObjectRecord struct {
	// Type is the record type prefix of the B-tree key, e.g. "CD" for a
	// class definition.
	Type string
	Data []byte
}

// objectKey is the dot-delimited suffix a B-tree key encodes:
// name.page.record.size.
type objectKey struct {
	name             string
	pageNumber       uint32
	recordIdentifier uint32
	dataSize         int
}

// parseObjectKey splits the last path segment of a CIM key into its four
// dot-separated values.
func parseObjectKey(key string) (objectKey, error) {
	var k objectKey
	if i := strings.LastIndex(key, keySegmentSeparator); i >= 0 {
		key = key[i+1:]
	}
	parts := strings.Split(key, ".")
	if len(parts) != 4 {
		return k, fmt.Errorf("object key %q has %d values: %w", key, len(parts), types.ErrBadReference)
	}
	page, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return k, fmt.Errorf("object key page number %q: %w", parts[1], types.ErrBadReference)
	}
	record, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return k, fmt.Errorf("object key record identifier %q: %w", parts[2], types.ErrBadReference)
	}
	size, err := strconv.ParseUint(parts[3], 10, 31)
	if err != nil {
		return k, fmt.Errorf("object key data size %q: %w", parts[3], types.ErrBadReference)
	}
	k.name = parts[0]
	k.pageNumber = uint32(page)
	k.recordIdentifier = uint32(record)
	k.dataSize = int(size)
	return k, nil
}

// ObjectsFile reads object records from an Objects.data image through its
// mapping file.
type ObjectsFile struct {
	data    []byte
	mapping *MappingFile
	warn    *types.WarningList
}

// NewObjectsFile returns a reader over a complete Objects.data image.
func NewObjectsFile(data []byte, mapping *MappingFile, warn *types.WarningList) *ObjectsFile {
	return &ObjectsFile{data: data, mapping: mapping, warn: warn}
}

// page returns the raw physical page a logical page number maps to.
func (f *ObjectsFile) page(logical uint32) ([]byte, error) {
	physical, ok := f.mapping.Map(logical)
	if !ok {
		f.warn.Add(uint64(logical), "objects mapping", "logical page unavailable")
		return nil, nil
	}
	img, ok := buf.Slice(f.data, int(physical)*PageSize, PageSize)
	if !ok {
		return nil, fmt.Errorf("objects page %d (physical %d): %w", logical, physical, types.ErrBadReference)
	}
	return img, nil
}

// readDescriptors scans a page's object descriptor table, terminated by an
// all-zero descriptor.
func readDescriptors(page []byte) []ObjectDescriptor {
	var out []ObjectDescriptor
	for off := 0; off+objectDescriptorSize <= len(page); off += objectDescriptorSize {
		d := ObjectDescriptor{
			Identifier: buf.U32LE(page[off:]),
			DataOffset: buf.U32LE(page[off+4:]),
			DataSize:   buf.U32LE(page[off+8:]),
			Checksum:   buf.U32LE(page[off+12:]),
		}
		if d == (ObjectDescriptor{}) {
			break
		}
		out = append(out, d)
	}
	return out
}

// ObjectRecordByKey resolves a B-tree key to its object record. The record
// identifier is looked up in the descriptor table of the key's page; data
// spanning past the page end continues at offset zero of consecutive
// logical pages. A descriptor whose size disagrees with the key's declared
// size produces a warning and the descriptor's size wins.
func (f *ObjectsFile) ObjectRecordByKey(key string) (*ObjectRecord, error) {
	k, err := parseObjectKey(key)
	if err != nil {
		return nil, err
	}

	firstPage, err := f.page(k.pageNumber)
	if err != nil {
		return nil, err
	}
	if firstPage == nil {
		return nil, fmt.Errorf("object record %d page %d unavailable: %w",
			k.recordIdentifier, k.pageNumber, types.ErrBadReference)
	}

	var desc *ObjectDescriptor
	for _, d := range readDescriptors(firstPage) {
		if d.Identifier == k.recordIdentifier {
			d := d
			desc = &d
			break
		}
	}
	if desc == nil {
		return nil, fmt.Errorf("object record %d not in page %d descriptor table: %w",
			k.recordIdentifier, k.pageNumber, types.ErrBadReference)
	}
	if int(desc.DataSize) != k.dataSize {
		f.warn.Add(uint64(k.pageNumber)*PageSize, "object descriptor",
			fmt.Sprintf("record %d data size %d disagrees with key size %d",
				k.recordIdentifier, desc.DataSize, k.dataSize))
	}

	remaining := int(desc.DataSize)
	dataOffset := int(desc.DataOffset)
	if dataOffset >= PageSize {
		return nil, fmt.Errorf("object record %d data offset %d: %w",
			k.recordIdentifier, dataOffset, types.ErrBadReference)
	}

	data := make([]byte, 0, remaining)
	page := firstPage
	logical := k.pageNumber
	for remaining > 0 {
		if page == nil {
			return nil, fmt.Errorf("object record %d continuation page %d unavailable: %w",
				k.recordIdentifier, logical, types.ErrBadReference)
		}
		chunk := page[dataOffset:]
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		data = append(data, chunk...)
		remaining -= len(chunk)
		if remaining > 0 {
			logical++
			dataOffset = 0
			if page, err = f.page(logical); err != nil {
				return nil, err
			}
		}
	}

	recordType, _, _ := strings.Cut(k.name, "_")
	return &ObjectRecord{Type: recordType, Data: data}, nil
}
