package bsm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactkit/artifactkit/pkg/types"
)

func be16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func be64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func headerToken32(recordSize uint32, eventType uint16) []byte {
	out := []byte{TokenHeader32}
	out = append(out, be32(recordSize)...)
	out = append(out, formatVersion)
	out = append(out, be16(eventType)...)
	out = append(out, be16(0)...)          // modifier
	out = append(out, be32(1600000000)...) // timestamp
	out = append(out, be32(250000)...)     // microseconds
	return out
}

func trailerToken(recordSize uint32) []byte {
	out := []byte{TokenTrailer}
	out = append(out, be16(trailerSignature)...)
	out = append(out, be32(recordSize)...)
	return out
}

func textToken(s string) []byte {
	out := []byte{TokenText}
	out = append(out, be16(uint16(len(s)+1))...)
	out = append(out, s...)
	return append(out, 0)
}

func returnToken32(status uint8, value uint32) []byte {
	out := []byte{TokenReturn32, status}
	return append(out, be32(value)...)
}

// record assembles tokens into a record, fixing up the header and trailer
// sizes.
func record(bodyTokens ...[]byte) []byte {
	var body []byte
	for _, tok := range bodyTokens {
		body = append(body, tok...)
	}
	size := uint32(18 + len(body) + 7) // header + body + trailer
	out := headerToken32(size, 45000)
	out = append(out, body...)
	return append(out, trailerToken(size)...)
}

func TestReadRecords(t *testing.T) {
	var img []byte
	img = append(img, record(textToken("successful login"), returnToken32(0, 5))...)
	img = append(img, record(textToken("logout"))...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)

	records := f.Records()
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, uint16(45000), first.Header.EventType)
	assert.Equal(t, uint64(1600000000), first.Header.Timestamp)
	require.Len(t, first.Tokens, 4, "header, text, return, trailer")
	assert.Equal(t, &TextToken{Text: "successful login"}, first.Tokens[1].Data)
	assert.Equal(t, &ReturnToken{Status: 0, Value: 5}, first.Tokens[2].Data)

	assert.Equal(t, int(first.Header.RecordSize), records[1].Offset)
}

func TestHeader64(t *testing.T) {
	var body []byte
	body = append(body, textToken("event")...)
	size := uint32(1 + 4 + 1 + 2 + 2 + 16 + len(body) + 7)

	img := []byte{TokenHeader64}
	img = append(img, be32(size)...)
	img = append(img, formatVersion)
	img = append(img, be16(7)...)
	img = append(img, be16(0)...)
	img = append(img, be64(1700000000)...)
	img = append(img, be64(999999)...)
	img = append(img, body...)
	img = append(img, trailerToken(size)...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	require.Len(t, f.Records(), 1)
	assert.Equal(t, uint64(1700000000), f.Records()[0].Header.Timestamp)
	assert.Equal(t, uint64(999999), f.Records()[0].Header.Microseconds)
}

func TestRecordSizeMismatch(t *testing.T) {
	size := uint32(18 + 7)
	img := headerToken32(size, 1)
	img = append(img, trailerToken(size+4)...)
	// Pad so the file spans the header's declared record size.
	img = append(img, make([]byte, 4)...)

	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrSizeMismatch)
}

func TestTrailerBadSignature(t *testing.T) {
	size := uint32(18 + 7)
	img := headerToken32(size, 1)
	trailer := trailerToken(size)
	trailer[1] = 0xff
	img = append(img, trailer...)

	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrBadSignature)
}

func TestNonHeaderFirstToken(t *testing.T) {
	_, err := OpenBytes(textToken("floating"), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrUnsupported)
}

func TestUnsupportedFormatVersion(t *testing.T) {
	img := record()
	img[5] = 12 // format version byte
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrUnsupportedVersion)
}

func TestUnknownTokenType(t *testing.T) {
	img := record([]byte{0xee, 0, 0, 0, 0})
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrUnsupported)
}

func TestMissingTrailer(t *testing.T) {
	// A text token declaring more bytes than the record holds.
	img := headerToken32(18+7, 1)
	img = append(img, TokenText)
	img = append(img, be16(100)...)
	img = append(img, 'x', 'y', 0, 0)
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}

func TestSubjectToken(t *testing.T) {
	subject := []byte{TokenSubject32}
	for _, v := range []uint32{501, 501, 20, 501, 20, 4242, 100, 0, 0x7f000001} {
		subject = append(subject, be32(v)...)
	}
	img := record(subject)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	tok := f.Records()[0].Tokens[1].Data.(*SubjectToken)
	assert.Equal(t, uint32(4242), tok.PID)
	assert.Equal(t, uint32(0x7f000001), tok.IPAddress)
}
