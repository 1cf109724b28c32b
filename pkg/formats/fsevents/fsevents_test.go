package fsevents

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactkit/artifactkit/pkg/types"
)

type recordSpec struct {
	path    string
	eventID uint64
	flags   uint32
	nodeID  uint64
}

// buildPage serializes one DLS page with its size fixed up.
func buildPage(version int, records []recordSpec) []byte {
	sig := sigDLSv1
	if version == 2 {
		sig = sigDLSv2
	}

	var body []byte
	for _, r := range records {
		body = append(body, r.path...)
		body = append(body, 0)
		body = binary.LittleEndian.AppendUint64(body, r.eventID)
		body = binary.LittleEndian.AppendUint32(body, r.flags)
		if version == 2 {
			body = binary.LittleEndian.AppendUint64(body, r.nodeID)
		}
	}

	page := append([]byte{}, sig...)
	page = binary.LittleEndian.AppendUint32(page, 0) // unknown
	page = binary.LittleEndian.AppendUint32(page, uint32(pageHeaderSize+len(body)))
	return append(page, body...)
}

func compress(t *testing.T, stream []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	gw := gzip.NewWriter(&out)
	_, err := gw.Write(stream)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return out.Bytes()
}

func TestVersion2Pages(t *testing.T) {
	stream := buildPage(2, []recordSpec{
		{path: "private/var/log/system.log", eventID: 101, flags: 0x1000, nodeID: 77},
		{path: "Users/demo/Documents", eventID: 102, flags: 0x80, nodeID: 78},
	})
	stream = append(stream, buildPage(2, []recordSpec{
		{path: "tmp", eventID: 103, flags: 0x01, nodeID: 79},
	})...)

	f, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.NoError(t, err)

	pages := f.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[0].FormatVersion)
	assert.Equal(t, pages[0].Size, pages[1].Offset)

	records := f.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "private/var/log/system.log", records[0].Path)
	assert.Equal(t, uint64(101), records[0].EventIdentifier)
	assert.Equal(t, uint32(0x1000), records[0].EventFlags)
	assert.Equal(t, uint64(77), records[0].NodeIdentifier)
	assert.Equal(t, uint64(103), records[2].EventIdentifier)
}

func TestVersion1Records(t *testing.T) {
	stream := buildPage(1, []recordSpec{
		{path: "etc/hosts", eventID: 9, flags: 0x02},
	})

	f, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.NoError(t, err)

	records := f.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "etc/hosts", records[0].Path)
	assert.Equal(t, uint64(9), records[0].EventIdentifier)
	assert.Zero(t, records[0].NodeIdentifier)
}

func TestUnknownPageSignature(t *testing.T) {
	stream := buildPage(1, nil)
	copy(stream, "3SLD")
	_, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrBadSignature)
}

func TestPageSizePastStream(t *testing.T) {
	stream := buildPage(1, nil)
	binary.LittleEndian.PutUint32(stream[8:], 4096)
	_, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrSizeMismatch)
}

func TestRecordPastPageEnd(t *testing.T) {
	// A record whose fixed fields run past the declared page size.
	stream := buildPage(1, []recordSpec{{path: "a", eventID: 1}})
	binary.LittleEndian.PutUint32(stream[8:], uint32(len(stream)-4))
	stream = stream[:len(stream)-4]
	_, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}

func TestRecordDoesNotSpillIntoNextPage(t *testing.T) {
	// The first page's size cuts its record short, with a valid page
	// starting right after; the short record must fail instead of reading
	// the next page's bytes.
	page := buildPage(1, []recordSpec{{path: "a", eventID: 1, flags: 2}})
	page = page[:len(page)-4]
	binary.LittleEndian.PutUint32(page[8:], uint32(len(page)))

	stream := append(page, buildPage(1, []recordSpec{{path: "b", eventID: 3, flags: 4}})...)
	_, err := OpenBytes(compress(t, stream), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrTruncated)
}

func TestNotGzip(t *testing.T) {
	_, err := OpenBytes([]byte("plain text"), types.OpenOptions{})
	require.ErrorIs(t, err, types.ErrBadSignature)
}
