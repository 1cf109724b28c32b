package types

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindTruncated   ErrKind = iota // fewer bytes available than a structure declares
	ErrKindSchema                     // a field plan references an unknown or later field
	ErrKindSignature                  // unrecognized magic value
	ErrKindVersion                    // recognized format, unsupported version
	ErrKindSize                       // declared size disagrees with a computed size
	ErrKindEncoding                   // text decoding failure
	ErrKindCompression                // decompression codec failure
	ErrKindReference                  // an offset, page number or identifier resolves to nothing
	ErrKindUnsupported                // valid feature we don't support (yet)
	ErrKindState                      // invalid operation for current state (e.g., closed)
)

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinels commonly returned by implementations.
var (
	// ErrTruncated indicates the input ended before a declared structure did.
	ErrTruncated = &Error{Kind: ErrKindTruncated, Msg: "truncated data"}
	// ErrSchema indicates a field plan bug (forward or dangling size reference).
	ErrSchema = &Error{Kind: ErrKindSchema, Msg: "schema resolution failure"}
	// ErrBadSignature indicates an unrecognized magic value.
	ErrBadSignature = &Error{Kind: ErrKindSignature, Msg: "unsupported signature"}
	// ErrUnsupportedVersion indicates a recognized format with an unhandled version.
	ErrUnsupportedVersion = &Error{Kind: ErrKindVersion, Msg: "unsupported format version"}
	// ErrSizeMismatch indicates a declared size disagrees with a computed one.
	ErrSizeMismatch = &Error{Kind: ErrKindSize, Msg: "size mismatch"}
	// ErrEncoding indicates text could not be decoded under the declared encoding.
	ErrEncoding = &Error{Kind: ErrKindEncoding, Msg: "encoding failure"}
	// ErrDecompress indicates an underlying codec failed.
	ErrDecompress = &Error{Kind: ErrKindCompression, Msg: "decompression failure"}
	// ErrBadReference indicates a dangling page number, offset or identifier.
	ErrBadReference = &Error{Kind: ErrKindReference, Msg: "unresolvable reference"}
	// ErrUnsupported indicates a recognized but unsupported feature/variant.
	ErrUnsupported = &Error{Kind: ErrKindUnsupported, Msg: "unsupported feature"}
	// ErrClosed indicates an operation on a closed handle.
	ErrClosed = &Error{Kind: ErrKindState, Msg: "handle is closed"}
)

// -----------------------------------------------------------------------------
// Warnings (recoverable conditions that do not stop a decode)
// -----------------------------------------------------------------------------

// Warning records a tolerated anomaly: a field decoded with replacement
// characters, a descriptor whose declared size disagreed with its key, an
// unavailable mapped page. Decoding continues after a warning.
type Warning struct {
	Offset  uint64 // file offset the anomaly was observed at
	Context string // structure or operation being decoded
	Msg     string
}

// WarningList accumulates warnings during a decode. The zero value is ready
// to use; a nil receiver discards everything so collection stays optional.
type WarningList struct {
	warnings []Warning
}

// Add appends a warning. Safe on a nil receiver.
func (l *WarningList) Add(offset uint64, context, msg string) {
	if l == nil {
		return
	}
	l.warnings = append(l.warnings, Warning{Offset: offset, Context: context, Msg: msg})
}

// All returns the collected warnings in observation order.
func (l *WarningList) All() []Warning {
	if l == nil {
		return nil
	}
	return l.warnings
}

// Len reports the number of collected warnings.
func (l *WarningList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.warnings)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// OpenOptions control decoder behavior at open time.
type OpenOptions struct {
	// MaxRecordSize caps any single record or block allocation. Zero selects
	// a 64 MiB default safeguard.
	MaxRecordSize int

	// Tolerant relaxes soft validation: truncated trailing records are
	// returned partially instead of failing the whole decode.
	Tolerant bool

	// CollectWarnings enables warning collection (zero-cost when false).
	CollectWarnings bool
}

// DefaultMaxRecordSize is applied when OpenOptions.MaxRecordSize is zero.
const DefaultMaxRecordSize = 64 << 20
