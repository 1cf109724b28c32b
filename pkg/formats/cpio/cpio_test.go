package cpio

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// newcEntry serializes one new ASCII entry with 4-byte path and data padding.
func newcEntry(path string, data []byte) []byte {
	hex8 := func(v int) string { return fmt.Sprintf("%08x", v) }
	pathBytes := append([]byte(path), 0)

	header := "070701" +
		hex8(42) +         // inode
		hex8(0o644) +      // mode
		hex8(1000) +       // uid
		hex8(1000) +       // gid
		hex8(1) +          // number of links
		hex8(1600000000) + // modification time
		hex8(len(data)) +
		hex8(8) + hex8(1) + // device major/minor
		hex8(0) + hex8(0) + // special device major/minor
		hex8(len(pathBytes)) +
		hex8(0) // checksum

	out := append([]byte(header), pathBytes...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	out = append(out, data...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func TestNewASCIITrailerStopsReading(t *testing.T) {
	var img []byte
	img = append(img, newcEntry("etc/passwd", []byte("root:x:0:0\n"))...)
	img = append(img, newcEntry("etc/hostname", []byte("forensic\n"))...)
	img = append(img, newcEntry("TRAILER!!!", nil)...)
	// Garbage past the trailer must never be reached.
	img = append(img, 0xde, 0xad, 0xbe, 0xef)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatNewASCII, f.Format)

	entries := f.FileEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "etc/passwd", entries[0].Path)
	assert.Equal(t, "etc/hostname", entries[1].Path)
	assert.Equal(t, uint64(42), entries[0].InodeNumber)
	assert.Equal(t, uint64(0o644), entries[0].Mode)
	assert.Equal(t, uint64(1600000000), entries[0].ModificationTime)

	data, err := f.EntryData(entries[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("root:x:0:0\n"), data)
}

func TestNewASCIIDuplicatePathsKeepFirst(t *testing.T) {
	var img []byte
	img = append(img, newcEntry("a", []byte("first"))...)
	img = append(img, newcEntry("a", []byte("second"))...)
	img = append(img, newcEntry("TRAILER!!!", nil)...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	require.Len(t, f.FileEntries(), 1)

	entry, ok := f.FileEntryByPath("a")
	require.True(t, ok)
	data, err := f.EntryData(entry)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

// binaryEntry serializes one big-endian binary entry with 2-byte path
// alignment.
func binaryEntry(path string, mtime uint32, data []byte) []byte {
	pathBytes := append([]byte(path), 0)
	fields := []uint16{
		0x71c7, // signature
		1,      // device number
		7,      // inode number
		0o644,  // mode
		0,      // uid
		0,      // gid
		1,      // number of links
		0,      // special device number
		uint16(mtime >> 16), uint16(mtime),
		uint16(len(pathBytes)),
		uint16(len(data) >> 16), uint16(len(data)),
	}
	out := make([]byte, 0, 26+len(pathBytes)+len(data))
	for _, v := range fields {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	out = append(out, pathBytes...)
	if len(out)%2 != 0 {
		out = append(out, 0)
	}
	return append(out, data...)
}

func TestBinaryBigEndian(t *testing.T) {
	const mtime = 0x5f5e1000
	var img []byte
	img = append(img, binaryEntry("bin/sh", mtime, []byte("#!"))...)
	img = append(img, binaryEntry("TRAILER!!!", 0, nil)...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatBinaryBigEndian, f.Format)

	entries := f.FileEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "bin/sh", entries[0].Path)
	assert.Equal(t, uint64(7), entries[0].InodeNumber)
	assert.Equal(t, uint64(mtime), entries[0].ModificationTime,
		"split 16-bit halves recombine")
	assert.Equal(t, 2, entries[0].DataSize)
}

// odcEntry serializes one portable ASCII entry. No alignment padding.
func odcEntry(path string, data []byte) []byte {
	oct := func(width, v int) string { return fmt.Sprintf("%0*o", width, v) }
	pathBytes := append([]byte(path), 0)

	header := "070707" +
		oct(6, 1) +      // device number
		oct(6, 9) +      // inode number
		oct(6, 0o755) +  // mode
		oct(6, 0) +      // uid
		oct(6, 0) +      // gid
		oct(6, 1) +      // number of links
		oct(6, 0) +      // special device number
		oct(11, 12345) + // modification time
		oct(6, len(pathBytes)) +
		oct(11, len(data))

	out := append([]byte(header), pathBytes...)
	return append(out, data...)
}

func TestPortableASCII(t *testing.T) {
	var img []byte
	img = append(img, odcEntry("var/log", []byte("x"))...)
	img = append(img, odcEntry("TRAILER!!!", nil)...)

	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatPortableASCII, f.Format)

	entries := f.FileEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "var/log", entries[0].Path)
	assert.Equal(t, uint64(0o755), entries[0].Mode)
	assert.Equal(t, uint64(12345), entries[0].ModificationTime)
}

func TestOpenBytesBadSignature(t *testing.T) {
	_, err := OpenBytes([]byte("000000garbage"), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrBadSignature)
}

func TestOpenBytesNonNumericField(t *testing.T) {
	entry := newcEntry("a", nil)
	copy(entry[6:], "zzzzzzzz") // inode digits
	_, err := OpenBytes(entry, types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrSchema)
}

func TestTruncatedPathString(t *testing.T) {
	entry := newcEntry("some/long/path", nil)
	_, err := OpenBytes(entry[:112], types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}

func TestClose(t *testing.T) {
	var img []byte
	img = append(img, newcEntry("TRAILER!!!", nil)...)
	f, err := OpenBytes(img, types.OpenOptions{})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.ErrorIs(t, f.Close(), types.ErrClosed)
}
