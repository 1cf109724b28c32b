package gzipf

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactkit/artifactkit/pkg/types"
)

type memberSpec struct {
	name    string
	comment string
	extra   []byte
	mtime   uint32
}

// buildMember serializes one gzip member around deflate-compressed payload.
func buildMember(t *testing.T, payload []byte, spec memberSpec) []byte {
	t.Helper()

	var flags byte
	if spec.extra != nil {
		flags |= FlagExtra
	}
	if spec.name != "" {
		flags |= FlagName
	}
	if spec.comment != "" {
		flags |= FlagComment
	}

	out := []byte{0x1f, 0x8b, 8, flags}
	out = binary.LittleEndian.AppendUint32(out, spec.mtime)
	out = append(out, 0, 3) // compression flags, operating system (unix)

	if spec.extra != nil {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(spec.extra)))
		out = append(out, spec.extra...)
	}
	if spec.name != "" {
		out = append(out, spec.name...)
		out = append(out, 0)
	}
	if spec.comment != "" {
		out = append(out, spec.comment...)
		out = append(out, 0)
	}

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	out = append(out, compressed.Bytes()...)

	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(payload))
	return binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
}

func TestSingleMember(t *testing.T) {
	payload := []byte("syslog line one\nsyslog line two\n")
	img := buildMember(t, payload, memberSpec{
		name:    "messages.log",
		comment: "rotated",
		extra:   []byte{0x41, 0x70, 2, 0, 1, 2},
		mtime:   1700000000,
	})

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)

	members := f.Members()
	require.Len(t, members, 1)
	m := members[0]
	assert.Equal(t, "messages.log", m.Name)
	assert.Equal(t, "rotated", m.Comment)
	assert.Equal(t, []byte{0x41, 0x70, 2, 0, 1, 2}, m.ExtraField)
	assert.Equal(t, uint32(1700000000), m.ModificationTime)
	assert.Equal(t, payload, m.Data)
	assert.Equal(t, uint32(len(payload)), m.UncompressedSize)
}

func TestMultipleMembers(t *testing.T) {
	var img []byte
	img = append(img, buildMember(t, []byte("first"), memberSpec{})...)
	img = append(img, buildMember(t, []byte("second"), memberSpec{})...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	require.Len(t, f.Members(), 2)
	assert.Equal(t, []byte("firstsecond"), f.Data())
	assert.Greater(t, f.Members()[1].Offset, 0)
}

func TestBadSignature(t *testing.T) {
	img := buildMember(t, []byte("x"), memberSpec{})
	img[0] = 0x50
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrBadSignature)
}

func TestUnsupportedCompressionMethod(t *testing.T) {
	img := buildMember(t, []byte("x"), memberSpec{})
	img[2] = 9
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrUnsupported)
}

func TestChecksumMismatch(t *testing.T) {
	img := buildMember(t, []byte("payload"), memberSpec{})
	img[len(img)-8] ^= 0xff // crc32 byte
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrDecompress)
}

func TestSizeMismatch(t *testing.T) {
	img := buildMember(t, []byte("payload"), memberSpec{})
	img[len(img)-4] ^= 0xff // isize byte
	_, err := OpenBytes(img, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrSizeMismatch)
}

func TestTruncatedFooter(t *testing.T) {
	img := buildMember(t, []byte("payload"), memberSpec{})
	_, err := OpenBytes(img[:len(img)-5], types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}

func TestCorruptDeflateStream(t *testing.T) {
	img := buildMember(t, bytes.Repeat([]byte("abcdef"), 100), memberSpec{})
	for i := 12; i < 20; i++ {
		img[i] ^= 0xa5
	}
	_, err := OpenBytes(img, types.OpenOptions{})
	require.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	_, err := OpenBytes(nil, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}
