package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactkit/artifactkit/internal/varint"
	"github.com/artifactkit/artifactkit/pkg/types"
)

func appendSlice(dst []byte, s []byte) []byte {
	dst = varint.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func TestParseVersionEdit(t *testing.T) {
	var rec []byte
	rec = varint.AppendUvarint(rec, tagComparator)
	rec = appendSlice(rec, []byte("leveldb.BytewiseComparator"))
	rec = varint.AppendUvarint(rec, tagLogNumber)
	rec = varint.AppendUvarint(rec, 12)
	rec = varint.AppendUvarint(rec, tagNextFileNumber)
	rec = varint.AppendUvarint(rec, 14)
	rec = varint.AppendUvarint(rec, tagLastSequence)
	rec = varint.AppendUvarint(rec, 9001)
	rec = varint.AppendUvarint(rec, tagCompactPointer)
	rec = varint.AppendUvarint(rec, 1)
	rec = appendSlice(rec, []byte("pointer-key"))
	rec = varint.AppendUvarint(rec, tagDeletedFile)
	rec = varint.AppendUvarint(rec, 2)
	rec = varint.AppendUvarint(rec, 7)
	rec = varint.AppendUvarint(rec, tagNewFile)
	rec = varint.AppendUvarint(rec, 0)
	rec = varint.AppendUvarint(rec, 13)
	rec = varint.AppendUvarint(rec, 4096)
	rec = appendSlice(rec, []byte("aaa"))
	rec = appendSlice(rec, []byte("zzz"))
	rec = varint.AppendUvarint(rec, tagPrevLogNumber)
	rec = varint.AppendUvarint(rec, 11)

	edit, err := ParseVersionEdit(rec)
	require.NoError(t, err)
	assert.Equal(t, "leveldb.BytewiseComparator", edit.Comparator)
	assert.True(t, edit.HasLogNumber)
	assert.Equal(t, uint64(12), edit.LogNumber)
	assert.Equal(t, uint64(14), edit.NextFileNumber)
	assert.Equal(t, uint64(9001), edit.LastSequence)
	assert.Equal(t, uint64(11), edit.PrevLogNumber)
	require.Len(t, edit.CompactPointers, 1)
	assert.Equal(t, []byte("pointer-key"), edit.CompactPointers[0].Key)
	require.Len(t, edit.DeletedFiles, 1)
	assert.Equal(t, DeletedFile{Level: 2, Number: 7}, edit.DeletedFiles[0])
	require.Len(t, edit.NewFiles, 1)
	assert.Equal(t, uint64(13), edit.NewFiles[0].Number)
	assert.Equal(t, uint64(4096), edit.NewFiles[0].Size)
	assert.Equal(t, []byte("aaa"), edit.NewFiles[0].SmallestKey)
}

func TestParseVersionEditUnknownTag(t *testing.T) {
	// Tag 8 is unassigned; field boundaries cannot be computed past it.
	rec := varint.AppendUvarint(nil, 8)
	rec = varint.AppendUvarint(rec, 1)
	_, err := ParseVersionEdit(rec)
	require.ErrorIs(t, err, types.ErrUnsupported)
}

func TestManifestReader(t *testing.T) {
	var rec []byte
	rec = varint.AppendUvarint(rec, tagLogNumber)
	rec = varint.AppendUvarint(rec, 3)

	data := appendFragment(nil, recordFull, rec)
	r := NewManifestReader(data, types.OpenOptions{})
	edits, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, uint64(3), edits[0].LogNumber)
}
