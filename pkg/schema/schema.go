// Package schema implements the declarative structure-decoding engine shared
// by the format parsers: a Schema lists ordered fields whose sizes may depend
// on earlier sibling values, and Read materializes one immutable Structure
// per invocation while advancing a Cursor.
package schema

import (
	"fmt"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// ByteOrder selects integer interpretation for a whole schema.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Kind discriminates field interpretations.
type Kind int

const (
	Uint8 Kind = iota
	Uint16
	Uint32
	Uint64
	Bytes   // fixed byte run of Field.Size
	CString // zero-terminated string in Field.Encoding
	Stream  // byte run whose length comes from Count/CountRef
	Struct  // nested structure per Field.Sub
	Array   // Count/CountRef elements, each decoded per Field.Sub
)

// Encoding names the text interpretation of CString fields.
type Encoding int

const (
	ASCII Encoding = iota
	UTF16LE
	CP1252
)

// Field describes one schema entry. Exactly one sizing rule applies per kind:
// integers size themselves, Bytes uses Size, Stream and Array use Count or,
// when CountRef is set, the decoded value of an earlier field of that name.
type Field struct {
	Name     string
	Kind     Kind
	Size     int
	Count    int
	CountRef string
	Encoding Encoding
	Sub      *Schema
	Format   Formatter
}

// Schema is an ordered field plan. Schemas are built once, validated, and
// never mutated afterwards.
type Schema struct {
	Name   string
	Order  ByteOrder
	Fields []Field
}

// Validate checks the plan is decodable sequentially: every CountRef must
// name an integer field occurring earlier in the same plan, and composite
// kinds must carry a sub-schema. Violations report ErrSchema.
func (s *Schema) Validate() error {
	seen := make(map[string]Kind, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %q: field %d has no name: %w", s.Name, i, types.ErrSchema)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %q: duplicate field %q: %w", s.Name, f.Name, types.ErrSchema)
		}
		if f.CountRef != "" {
			refKind, ok := seen[f.CountRef]
			if !ok {
				return fmt.Errorf("schema %q: field %q references unknown or later field %q: %w",
					s.Name, f.Name, f.CountRef, types.ErrSchema)
			}
			if refKind > Uint64 {
				return fmt.Errorf("schema %q: field %q count reference %q is not an integer: %w",
					s.Name, f.Name, f.CountRef, types.ErrSchema)
			}
		}
		if (f.Kind == Struct || f.Kind == Array) && f.Sub == nil {
			return fmt.Errorf("schema %q: composite field %q has no sub-schema: %w",
				s.Name, f.Name, types.ErrSchema)
		}
		if f.Kind == Struct || f.Kind == Array {
			if err := f.Sub.Validate(); err != nil {
				return err
			}
		}
		seen[f.Name] = f.Kind
	}
	return nil
}
