// Package bsm reads Basic Security Module (BSM) event auditing files: a
// sequence of event records, each a big-endian token stream opened by a
// header token and closed by a trailer token.
package bsm

import (
	"fmt"

	"github.com/artifactkit/artifactkit/internal/buf"
	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/types"
)

// Token types.
const (
	TokenTrailer    = 0x13
	TokenHeader32   = 0x14
	TokenHeader32Ex = 0x15
	TokenPath       = 0x23
	TokenSubject32  = 0x24
	TokenReturn32   = 0x27
	TokenText       = 0x28
	TokenInAddr     = 0x2a
	TokenIPort      = 0x2c
	TokenArg32      = 0x2d
	TokenSeq        = 0x2f
	TokenExit       = 0x52
	TokenZonename   = 0x60
	TokenArg64      = 0x71
	TokenReturn64   = 0x72
	TokenHeader64   = 0x74
	TokenHeader64Ex = 0x79
)

const (
	trailerSignature = 0xb105
	formatVersion    = 11
)

// TokenData is implemented by every decoded token body.
type TokenData interface {
	isTokenData()
}

// HeaderToken opens an event record. The record size spans the whole record,
// header and trailer tokens included.
type HeaderToken struct {
	RecordSize    uint32
	FormatVersion uint8
	EventType     uint16
	Modifier      uint16
	Timestamp     uint64
	Microseconds  uint64

	// NetType and IPAddress are set for the extended header variants;
	// NetType is 4 or 16, the address length in bytes.
	NetType   uint32
	IPAddress []byte
}

// TrailerToken closes an event record and repeats its size.
type TrailerToken struct {
	Signature  uint16
	RecordSize uint32
}

// TextToken carries a zero-terminated string.
type TextToken struct {
	Text string
}

// PathToken carries a file system path.
type PathToken struct {
	Path string
}

// ReturnToken carries a system call status and return value.
type ReturnToken struct {
	Status uint8
	Value  uint64
}

// SubjectToken identifies the audited process.
type SubjectToken struct {
	AuditUID     uint32
	EffectiveUID uint32
	EffectiveGID uint32
	RealUID      uint32
	RealGID      uint32
	PID          uint32
	SessionID    uint32
	TerminalPort uint32
	IPAddress    uint32
}

// ArgToken carries one system call argument.
type ArgToken struct {
	Index uint8
	Value uint64
	Text  string
}

// ExitToken carries a process exit status.
type ExitToken struct {
	Status uint32
	Value  uint32
}

// ZonenameToken carries a Solaris zone name.
type ZonenameToken struct {
	Name string
}

// SeqToken carries a sequence number.
type SeqToken struct {
	SequenceNumber uint32
}

// InAddrToken carries an IPv4 address.
type InAddrToken struct {
	Address uint32
}

// IPortToken carries an IP port number.
type IPortToken struct {
	Port uint16
}

func (*HeaderToken) isTokenData()   {}
func (*TrailerToken) isTokenData()  {}
func (*TextToken) isTokenData()     {}
func (*PathToken) isTokenData()     {}
func (*ReturnToken) isTokenData()   {}
func (*SubjectToken) isTokenData()  {}
func (*ArgToken) isTokenData()      {}
func (*ExitToken) isTokenData()     {}
func (*ZonenameToken) isTokenData() {}
func (*SeqToken) isTokenData()      {}
func (*InAddrToken) isTokenData()   {}
func (*IPortToken) isTokenData()    {}

// Token is one decoded token with its file offset.
type Token struct {
	Type   uint8
	Offset int
	Data   TokenData
}

// Record is one audit event record.
type Record struct {
	Offset int
	Header *HeaderToken
	Tokens []Token
}

// AuditFile is an open BSM event auditing file.
type AuditFile struct {
	data    []byte
	unmap   func() error
	records []*Record
	closed  bool
}

// Open memory-maps and reads the audit file at path.
func Open(path string, opts types.OpenOptions) (*AuditFile, error) {
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

// OpenBytes reads an audit file from a complete in-memory image.
func OpenBytes(data []byte, opts types.OpenOptions) (*AuditFile, error) {
	f := &AuditFile{data: data}
	offset := 0
	for offset < len(data) {
		record, err := f.readRecord(offset)
		if err != nil {
			return nil, fmt.Errorf("event record at offset %d: %w", offset, err)
		}
		f.records = append(f.records, record)
		offset += int(record.Header.RecordSize)
	}
	return f, nil
}

// readRecord reads one event record: a header token, its body tokens and the
// trailer. The trailer must repeat the header's record size.
func (f *AuditFile) readRecord(offset int) (*Record, error) {
	token, next, err := f.readToken(offset)
	if err != nil {
		return nil, err
	}
	header, ok := token.Data.(*HeaderToken)
	if !ok {
		return nil, fmt.Errorf("header token type 0x%02x: %w", token.Type, types.ErrUnsupported)
	}
	if header.FormatVersion != formatVersion {
		return nil, fmt.Errorf("format version %d: %w", header.FormatVersion, types.ErrUnsupportedVersion)
	}

	record := &Record{Offset: offset, Header: header, Tokens: []Token{token}}
	recordEnd := offset + int(header.RecordSize)
	if recordEnd > len(f.data) {
		return nil, fmt.Errorf("record size %d: %w", header.RecordSize, types.ErrTruncated)
	}

	var trailer *TrailerToken
	for cursor := next; cursor < recordEnd; {
		if token, cursor, err = f.readToken(cursor); err != nil {
			return nil, err
		}
		record.Tokens = append(record.Tokens, token)
		if t, ok := token.Data.(*TrailerToken); ok {
			trailer = t
			break
		}
	}

	if trailer == nil {
		return nil, fmt.Errorf("record without trailer token: %w", types.ErrTruncated)
	}
	if trailer.Signature != trailerSignature {
		return nil, fmt.Errorf("trailer signature 0x%04x: %w", trailer.Signature, types.ErrBadSignature)
	}
	if trailer.RecordSize != header.RecordSize {
		return nil, fmt.Errorf("trailer size %d disagrees with header size %d: %w",
			trailer.RecordSize, header.RecordSize, types.ErrSizeMismatch)
	}
	return record, nil
}

// readToken decodes the token at offset and returns it with the offset of
// the next token.
func (f *AuditFile) readToken(offset int) (Token, int, error) {
	token := Token{Offset: offset}
	if !buf.Has(f.data, offset, 1) {
		return token, 0, fmt.Errorf("token type: %w", types.ErrTruncated)
	}
	token.Type = f.data[offset]
	body := f.data[offset+1:]

	var size int
	var err error
	switch token.Type {
	case TokenHeader32, TokenHeader64, TokenHeader32Ex, TokenHeader64Ex:
		token.Data, size, err = readHeaderToken(token.Type, body)
	case TokenTrailer:
		if err = need(body, 6, "trailer token"); err == nil {
			token.Data = &TrailerToken{Signature: buf.U16BE(body), RecordSize: buf.U32BE(body[2:])}
			size = 6
		}
	case TokenText, TokenPath, TokenZonename:
		var s string
		if s, size, err = readSizedString(body); err == nil {
			switch token.Type {
			case TokenText:
				token.Data = &TextToken{Text: s}
			case TokenPath:
				token.Data = &PathToken{Path: s}
			default:
				token.Data = &ZonenameToken{Name: s}
			}
		}
	case TokenReturn32:
		if err = need(body, 5, "return token"); err == nil {
			token.Data = &ReturnToken{Status: body[0], Value: uint64(buf.U32BE(body[1:]))}
			size = 5
		}
	case TokenReturn64:
		if err = need(body, 9, "return token"); err == nil {
			token.Data = &ReturnToken{Status: body[0], Value: buf.U64BE(body[1:])}
			size = 9
		}
	case TokenSubject32:
		if err = need(body, 36, "subject token"); err == nil {
			token.Data = &SubjectToken{
				AuditUID:     buf.U32BE(body),
				EffectiveUID: buf.U32BE(body[4:]),
				EffectiveGID: buf.U32BE(body[8:]),
				RealUID:      buf.U32BE(body[12:]),
				RealGID:      buf.U32BE(body[16:]),
				PID:          buf.U32BE(body[20:]),
				SessionID:    buf.U32BE(body[24:]),
				TerminalPort: buf.U32BE(body[28:]),
				IPAddress:    buf.U32BE(body[32:]),
			}
			size = 36
		}
	case TokenArg32, TokenArg64:
		token.Data, size, err = readArgToken(token.Type, body)
	case TokenExit:
		if err = need(body, 8, "exit token"); err == nil {
			token.Data = &ExitToken{Status: buf.U32BE(body), Value: buf.U32BE(body[4:])}
			size = 8
		}
	case TokenSeq:
		if err = need(body, 4, "seq token"); err == nil {
			token.Data = &SeqToken{SequenceNumber: buf.U32BE(body)}
			size = 4
		}
	case TokenInAddr:
		if err = need(body, 4, "in_addr token"); err == nil {
			token.Data = &InAddrToken{Address: buf.U32BE(body)}
			size = 4
		}
	case TokenIPort:
		if err = need(body, 2, "iport token"); err == nil {
			token.Data = &IPortToken{Port: buf.U16BE(body)}
			size = 2
		}
	default:
		return token, 0, fmt.Errorf("token type 0x%02x: %w", token.Type, types.ErrUnsupported)
	}
	if err != nil {
		return token, 0, err
	}
	return token, offset + 1 + size, nil
}

func readHeaderToken(tokenType uint8, body []byte) (*HeaderToken, int, error) {
	if err := need(body, 9, "header token"); err != nil {
		return nil, 0, err
	}
	h := &HeaderToken{
		RecordSize:    buf.U32BE(body),
		FormatVersion: body[4],
		EventType:     buf.U16BE(body[5:]),
		Modifier:      buf.U16BE(body[7:]),
	}
	off := 9

	if tokenType == TokenHeader32Ex || tokenType == TokenHeader64Ex {
		if err := need(body, off+4, "header net type"); err != nil {
			return nil, 0, err
		}
		h.NetType = buf.U32BE(body[off:])
		off += 4
		if h.NetType != 4 && h.NetType != 16 {
			return nil, 0, fmt.Errorf("header net type %d: %w", h.NetType, types.ErrUnsupported)
		}
		addr, ok := buf.Slice(body, off, int(h.NetType))
		if !ok {
			return nil, 0, fmt.Errorf("header ip address: %w", types.ErrTruncated)
		}
		h.IPAddress = addr
		off += int(h.NetType)
	}

	timeSize := 4
	if tokenType == TokenHeader64 || tokenType == TokenHeader64Ex {
		timeSize = 8
	}
	if err := need(body, off+2*timeSize, "header timestamp"); err != nil {
		return nil, 0, err
	}
	if timeSize == 8 {
		h.Timestamp = buf.U64BE(body[off:])
		h.Microseconds = buf.U64BE(body[off+8:])
	} else {
		h.Timestamp = uint64(buf.U32BE(body[off:]))
		h.Microseconds = uint64(buf.U32BE(body[off+4:]))
	}
	return h, off + 2*timeSize, nil
}

func readArgToken(tokenType uint8, body []byte) (*ArgToken, int, error) {
	valueSize := 4
	if tokenType == TokenArg64 {
		valueSize = 8
	}
	if err := need(body, 1+valueSize, "arg token"); err != nil {
		return nil, 0, err
	}
	a := &ArgToken{Index: body[0]}
	if valueSize == 8 {
		a.Value = buf.U64BE(body[1:])
	} else {
		a.Value = uint64(buf.U32BE(body[1:]))
	}
	text, size, err := readSizedString(body[1+valueSize:])
	if err != nil {
		return nil, 0, err
	}
	a.Text = text
	return a, 1 + valueSize + size, nil
}

// readSizedString reads a 16-bit size followed by that many bytes of
// zero-terminated text. The size includes the terminator.
func readSizedString(body []byte) (string, int, error) {
	if err := need(body, 2, "string size"); err != nil {
		return "", 0, err
	}
	size := int(buf.U16BE(body))
	text, ok := buf.Slice(body, 2, size)
	if !ok {
		return "", 0, fmt.Errorf("string (%d bytes): %w", size, types.ErrTruncated)
	}
	for len(text) > 0 && text[len(text)-1] == 0 {
		text = text[:len(text)-1]
	}
	return string(text), 2 + size, nil
}

func need(body []byte, n int, what string) error {
	if len(body) < n {
		return fmt.Errorf("%s: %w", what, types.ErrTruncated)
	}
	return nil
}

// Records returns the decoded event records in file order.
func (f *AuditFile) Records() []*Record {
	return f.records
}

// Close releases the audit file.
func (f *AuditFile) Close() error {
	if f.closed {
		return fmt.Errorf("bsm: %w", types.ErrClosed)
	}
	f.closed = true
	f.records = nil
	if f.unmap != nil {
		return f.unmap()
	}
	return nil
}
