package cim

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Index binary-tree page types.
const (
	PageTypeActive         = 0xaccc
	PageTypeAdministrative = 0xaddd
	PageTypeDeleted        = 0xbadd
)

const keySegmentSeparator = "\\"

// ErrRootPageType is returned when the first mapped index page is not the
// administrative root pointer page.
var ErrRootPageType = &types.Error{
	Kind: types.ErrKindReference,
	Msg:  "first mapped index page type mismatch",
}

// IndexPage is one immutable 8192-byte index binary-tree page.
//
// Page header:
//
// Offset  Size  Field
// 0x00    4     page type
// 0x04    4     mapped page number
// 0x08    4     unknown
// 0x0c    4     root page number
//
// Active pages carry a body of keys, sub-page numbers and an interned string
// table; key path segments reference interned strings by index.
type IndexPage struct {
	Type           uint32
	RootPageNumber uint32
	Keys           []string
	SubPages       []uint32 // number_of_keys+1 entries, 0 or 0xffffffff = absent
}

// parseIndexPage decodes one page image of PageSize bytes.
func parseIndexPage(page []byte) (*IndexPage, error) {
	if len(page) < 16 {
		return nil, fmt.Errorf("index page header: %w", types.ErrTruncated)
	}
	p := &IndexPage{
		Type:           buf.U32LE(page),
		RootPageNumber: buf.U32LE(page[12:]),
	}
	if p.Type != PageTypeActive {
		return p, nil
	}

	body := page[16:]
	if len(body) < 4 {
		return nil, fmt.Errorf("index page body: %w", types.ErrTruncated)
	}
	numKeys := int(buf.U32LE(body))
	off := 4

	// Unknown per-key array.
	end, err := buf.CheckListBounds(len(body), off, numKeys, 4)
	if err != nil {
		return nil, fmt.Errorf("index page body: %w", err)
	}
	off = end

	if end, err = buf.CheckListBounds(len(body), off, numKeys+1, 4); err != nil {
		return nil, fmt.Errorf("sub pages: %w", err)
	}
	for ; off < end; off += 4 {
		p.SubPages = append(p.SubPages, buf.U32LE(body[off:]))
	}

	keyOffsets := make([]int, 0, numKeys)
	if end, err = buf.CheckListBounds(len(body), off, numKeys, 2); err != nil {
		return nil, fmt.Errorf("key offsets: %w", err)
	}
	for ; off < end; off += 2 {
		keyOffsets = append(keyOffsets, int(buf.U16LE(body[off:])))
	}

	// Key data size is in 16-bit words.
	if !buf.Has(body, off, 2) {
		return nil, fmt.Errorf("key data size: %w", types.ErrTruncated)
	}
	keyDataSize := int(buf.U16LE(body[off:])) * 2
	off += 2
	keyData, ok := buf.Slice(body, off, keyDataSize)
	if !ok {
		return nil, fmt.Errorf("key data (%d bytes): %w", keyDataSize, types.ErrTruncated)
	}
	off += keyDataSize

	if !buf.Has(body, off, 2) {
		return nil, fmt.Errorf("value count: %w", types.ErrTruncated)
	}
	numValues := int(buf.U16LE(body[off:]))
	off += 2
	valueOffsets := make([]int, 0, numValues)
	if end, err = buf.CheckListBounds(len(body), off, numValues, 2); err != nil {
		return nil, fmt.Errorf("value offsets: %w", err)
	}
	for ; off < end; off += 2 {
		valueOffsets = append(valueOffsets, int(buf.U16LE(body[off:])))
	}

	if !buf.Has(body, off, 2) {
		return nil, fmt.Errorf("value data size: %w", types.ErrTruncated)
	}
	valueDataSize := int(buf.U16LE(body[off:])) * 2
	off += 2
	valueData, ok := buf.Slice(body, off, valueDataSize)
	if !ok {
		return nil, fmt.Errorf("value data (%d bytes): %w", valueDataSize, types.ErrTruncated)
	}

	// Interned key path segments: NUL-terminated strings in value data.
	values := make([]string, 0, numValues)
	for i, valueOff := range valueOffsets {
		if valueOff >= len(valueData) {
			return nil, fmt.Errorf("value %d offset %d: %w", i, valueOff, types.ErrBadReference)
		}
		s := valueData[valueOff:]
		if nul := bytes.IndexByte(s, 0); nul >= 0 {
			s = s[:nul]
		}
		values = append(values, string(s))
	}

	// Keys reference segments by interned-string index.
	for i, keyOff := range keyOffsets {
		segments, err := readPageKey(keyData, keyOff*2, values)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		p.Keys = append(p.Keys, keySegmentSeparator+strings.Join(segments, keySegmentSeparator))
	}
	return p, nil
}

// readPageKey decodes one page key: a segment count and that many interned
// string indices.
func readPageKey(keyData []byte, off int, values []string) ([]string, error) {
	if !buf.Has(keyData, off, 2) {
		return nil, fmt.Errorf("segment count at %d: %w", off, types.ErrTruncated)
	}
	numSegments := int(buf.U16LE(keyData[off:]))
	off += 2
	end, err := buf.CheckListBounds(len(keyData), off, numSegments, 2)
	if err != nil {
		return nil, fmt.Errorf("segments: %w", err)
	}
	segments := make([]string, 0, numSegments)
	for ; off < end; off += 2 {
		idx := int(buf.U16LE(keyData[off:]))
		if idx >= len(values) {
			return nil, fmt.Errorf("segment index %d of %d values: %w", idx, len(values), types.ErrBadReference)
		}
		segments = append(segments, values[idx])
	}
	return segments, nil
}

// IndexFile reads the index binary tree through its mapping file.
type IndexFile struct {
	data    []byte
	mapping *MappingFile
	warn    *types.WarningList

	firstMapped *IndexPage
	root        *IndexPage
	pages       map[uint32]*IndexPage // physical page cache
}

// NewIndexFile returns an index reader over a complete Index.btr image.
func NewIndexFile(data []byte, mapping *MappingFile, warn *types.WarningList) *IndexFile {
	return &IndexFile{data: data, mapping: mapping, warn: warn, pages: map[uint32]*IndexPage{}}
}

// page reads the page at a physical page number, caching the result.
func (f *IndexFile) page(physical uint32) (*IndexPage, error) {
	if p, ok := f.pages[physical]; ok {
		return p, nil
	}
	off := int(physical) * PageSize
	img, ok := buf.Slice(f.data, off, PageSize)
	if !ok {
		return nil, fmt.Errorf("index page %d at %d: %w", physical, off, types.ErrBadReference)
	}
	p, err := parseIndexPage(img)
	if err != nil {
		return nil, fmt.Errorf("index page %d: %w", physical, err)
	}
	f.pages[physical] = p
	return p, nil
}

// MappedPage resolves a logical page number through the mapping file and
// reads the page. Unavailable mappings return nil with a warning rather than
// an error.
func (f *IndexFile) MappedPage(logical uint32) (*IndexPage, error) {
	physical, ok := f.mapping.Map(logical)
	if !ok {
		f.warn.Add(uint64(logical), "index mapping", "logical page unavailable")
		return nil, nil
	}
	return f.page(physical)
}

// RootPage locates the tree root: the first mapped page must be the
// administrative pointer page, and its root page number (mapped again)
// yields the active root. A wrong first-page type fails before any further
// read.
func (f *IndexFile) RootPage() (*IndexPage, error) {
	if f.root != nil {
		return f.root, nil
	}
	if f.firstMapped == nil {
		if f.mapping.Len() == 0 {
			return nil, fmt.Errorf("empty index mapping: %w", types.ErrBadReference)
		}
		first, err := f.MappedPage(0)
		if err != nil {
			return nil, err
		}
		if first == nil {
			return nil, fmt.Errorf("first mapped index page unavailable: %w", types.ErrBadReference)
		}
		if first.Type != PageTypeAdministrative {
			return nil, fmt.Errorf("page type 0x%04x: %w", first.Type, ErrRootPageType)
		}
		f.firstMapped = first
	}
	root, err := f.MappedPage(f.firstMapped.RootPageNumber)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("root page %d unavailable: %w", f.firstMapped.RootPageNumber, types.ErrBadReference)
	}
	f.root = root
	return root, nil
}

// Keys walks the tree in order from the root, interleaving each page's keys
// with descent into its sub-pages. Per-page read failures during the walk
// surface as warnings and the walk continues with the remaining branches.
func (f *IndexFile) Keys() ([]string, error) {
	root, err := f.RootPage()
	if err != nil {
		return nil, err
	}
	var keys []string
	f.collectKeys(root, &keys)
	return keys, nil
}

func (f *IndexFile) collectKeys(page *IndexPage, keys *[]string) {
	descend := func(logical uint32) {
		if logical == 0 || logical == PageUnavailable {
			return
		}
		sub, err := f.MappedPage(logical)
		if err != nil {
			f.warn.Add(uint64(logical), "index traversal", err.Error())
			return
		}
		if sub != nil {
			f.collectKeys(sub, keys)
		}
	}
	for i, key := range page.Keys {
		if i < len(page.SubPages) {
			descend(page.SubPages[i])
		}
		*keys = append(*keys, key)
	}
	if len(page.SubPages) > len(page.Keys) {
		descend(page.SubPages[len(page.Keys)])
	}
}
