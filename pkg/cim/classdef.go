package cim

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// RecordTypeClassDefinition is the B-tree key prefix of class definitions.
const RecordTypeClassDefinition = "CD"

// propertyTypeValueSizes maps CIM property types to their fixed value size.
// Zero means variable size.
var propertyTypeValueSizes = map[uint32]int{
	0x00000002: 2, // sint16
	0x00000003: 4, // sint32
	0x00000004: 4, // real32
	0x00000005: 8, // real64
	0x00000008: 0, // string
	0x0000000b: 2, // boolean
	0x0000000d: 0, // object
	0x00000010: 1, // sint8
	0x00000011: 1, // uint8
	0x00000012: 2, // uint16
	0x00000013: 4, // uint32
	0x00000014: 8, // sint64
	0x00000015: 8, // uint64
	0x00000065: 0, // datetime string
	0x00000066: 2, // reference
	0x00000067: 2, // char16
}

// Property is one decoded class property.
type Property struct {
	Name           string
	Type           uint32
	Index          uint16
	Offset         uint32
	Level          uint16
	QualifiersData []byte
	// ValueSize is the fixed value size for the property type; zero for
	// variable-size types, -1 when the type is unknown.
	ValueSize int
}

// ClassDefinition is a decoded class definition object record.
type ClassDefinition struct {
	SuperClassName string
	// Timestamp is a FILETIME value.
	Timestamp      uint64
	ClassName      string
	QualifiersData []byte
	Properties     []Property
}

// ParseClassDefinition decodes a class definition object record. Undecodable
// UTF-16 names decode to an empty string with a warning.
func ParseClassDefinition(data []byte, warn *types.WarningList) (*ClassDefinition, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("class definition: %w", types.ErrTruncated)
	}
	nameSize := int(buf.U32LE(data))
	off := 4

	nameData, ok := buf.Slice(data, off, nameSize*2)
	if !ok {
		return nil, fmt.Errorf("super class name (%d characters): %w", nameSize, types.ErrTruncated)
	}
	off += nameSize * 2

	cd := &ClassDefinition{SuperClassName: decodeUTF16(nameData, warn, "super class name")}

	if !buf.Has(data, off, 12) {
		return nil, fmt.Errorf("class definition header: %w", types.ErrTruncated)
	}
	cd.Timestamp = buf.U64LE(data[off:])
	off += 8

	// The definition block size counts its own 4-byte size field.
	blockSize := int(buf.U32LE(data[off:]))
	if blockSize < 4 {
		return nil, fmt.Errorf("class definition block size %d: %w", blockSize, types.ErrSizeMismatch)
	}
	off += 4
	block, ok := buf.Slice(data, off, blockSize-4)
	if !ok {
		return nil, fmt.Errorf("class definition block (%d bytes): %w", blockSize, types.ErrTruncated)
	}

	if err := cd.parseDefinitionBlock(block, warn); err != nil {
		return nil, err
	}
	return cd, nil
}

// parseDefinitionBlock decodes the class definition header and its property
// descriptor table.
func (cd *ClassDefinition) parseDefinitionBlock(block []byte, warn *types.WarningList) error {
	if len(block) < 12 {
		return fmt.Errorf("definition header: %w", types.ErrTruncated)
	}
	// unknown u32, class name offset u32, default value size u32.
	classNameOffset := buf.U32LE(block[4:])
	defaultValueSize := int(buf.U32LE(block[8:]))
	off := 12

	// Super class name block and qualifiers block, each a size-prefixed
	// region whose size counts the 4-byte size field.
	for _, name := range []string{"super class name block", "qualifiers block"} {
		if !buf.Has(block, off, 4) {
			return fmt.Errorf("%s size: %w", name, types.ErrTruncated)
		}
		size := int(buf.U32LE(block[off:]))
		if size < 4 {
			return fmt.Errorf("%s size %d: %w", name, size, types.ErrSizeMismatch)
		}
		body, ok := buf.Slice(block, off+4, size-4)
		if !ok {
			return fmt.Errorf("%s (%d bytes): %w", name, size, types.ErrTruncated)
		}
		if name == "qualifiers block" {
			cd.QualifiersData = body
		}
		off += size
	}

	if !buf.Has(block, off, 4) {
		return fmt.Errorf("property descriptor count: %w", types.ErrTruncated)
	}
	numDescriptors := int(buf.U32LE(block[off:]))
	off += 4

	type descriptor struct{ nameOffset, definitionOffset uint32 }
	descriptors := make([]descriptor, 0, numDescriptors)
	end, err := buf.CheckListBounds(len(block), off, numDescriptors, 8)
	if err != nil {
		return fmt.Errorf("property descriptors: %w", err)
	}
	for ; off < end; off += 8 {
		descriptors = append(descriptors, descriptor{
			nameOffset:       buf.U32LE(block[off:]),
			definitionOffset: buf.U32LE(block[off+4:]),
		})
	}

	if !buf.Has(block, off, defaultValueSize) {
		return fmt.Errorf("default value data (%d bytes): %w", defaultValueSize, types.ErrTruncated)
	}
	off += defaultValueSize

	if !buf.Has(block, off, 4) {
		return fmt.Errorf("properties block size: %w", types.ErrTruncated)
	}
	// The top bit flags the block as local; mask it off before sizing.
	propsSize := int(buf.U32LE(block[off:]) & 0x7fffffff)
	if propsSize < 4 {
		return fmt.Errorf("properties block size %d: %w", propsSize, types.ErrSizeMismatch)
	}
	props, ok := buf.Slice(block, off+4, propsSize-4)
	if !ok {
		return fmt.Errorf("properties block (%d bytes): %w", propsSize, types.ErrTruncated)
	}

	// The class name lives in the properties block like property names do.
	if name, err := readBlockString(props, classNameOffset); err != nil {
		warn.Add(0, "class name", err.Error())
	} else {
		cd.ClassName = name
	}

	for i, d := range descriptors {
		p, err := parseProperty(props, d.nameOffset, d.definitionOffset)
		if err != nil {
			return fmt.Errorf("property %d: %w", i, err)
		}
		cd.Properties = append(cd.Properties, p)
	}
	return nil
}

// readBlockString reads a string flags byte followed by a zero-terminated
// string at a masked block offset.
func readBlockString(block []byte, offset uint32) (string, error) {
	off := int(offset & 0x7fffffff)
	if off >= len(block) {
		return "", fmt.Errorf("string offset %d: %w", off, types.ErrBadReference)
	}
	s := block[off+1:]
	if nul := bytes.IndexByte(s, 0); nul >= 0 {
		s = s[:nul]
	}
	return string(s), nil
}

// parseProperty resolves one property descriptor against the properties
// block. Offsets carry a top-bit "local blob" flag that is masked off before
// use.
func parseProperty(props []byte, nameOffset, definitionOffset uint32) (Property, error) {
	var p Property

	name, err := readBlockString(props, nameOffset)
	if err != nil {
		return p, fmt.Errorf("property name: %w", err)
	}
	p.Name = name

	defOff := int(definitionOffset & 0x7fffffff)
	if !buf.Has(props, defOff, 16) {
		return p, fmt.Errorf("definition offset %d: %w", defOff, types.ErrBadReference)
	}
	p.Type = buf.U32LE(props[defOff:])
	p.Index = buf.U16LE(props[defOff+4:])
	p.Offset = buf.U32LE(props[defOff+6:])
	p.Level = buf.U16LE(props[defOff+10:])

	qualifiersSize := int(buf.U32LE(props[defOff+12:]))
	if qualifiersSize >= 4 {
		if body, ok := buf.Slice(props, defOff+16, qualifiersSize-4); ok {
			p.QualifiersData = body
		}
	}

	if size, known := propertyTypeValueSizes[p.Type&0x00001fff]; known {
		p.ValueSize = size
	} else {
		p.ValueSize = -1
	}
	return p, nil
}

// decodeUTF16 decodes UTF-16LE bytes, warning instead of failing.
func decodeUTF16(data []byte, warn *types.WarningList, context string) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		warn.Add(0, context, "undecodable UTF-16 string")
		return ""
	}
	return string(out)
}
