package leveldb

import (
	"fmt"
	"io"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// Manifest record tags. Tag 8 is unassigned in the format.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

// FileMeta describes a table file recorded by a newFile edit.
type FileMeta struct {
	Level       int
	Number      uint64
	Size        uint64
	SmallestKey []byte
	LargestKey  []byte
}

// DeletedFile identifies a table file removed by an edit.
type DeletedFile struct {
	Level  int
	Number uint64
}

// CompactPointer records where compaction resumes on a level.
type CompactPointer struct {
	Level int
	Key   []byte
}

// VersionEdit is one decoded manifest record.
type VersionEdit struct {
	Comparator      string
	LogNumber       uint64
	PrevLogNumber   uint64
	NextFileNumber  uint64
	LastSequence    uint64
	CompactPointers []CompactPointer
	DeletedFiles    []DeletedFile
	NewFiles        []FileMeta

	HasLogNumber      bool
	HasPrevLogNumber  bool
	HasNextFileNumber bool
	HasLastSequence   bool
}

// ParseVersionEdit decodes one manifest record: a stream of {tag varint,
// payload} pairs. An unrecognized tag is fatal since the payload boundary
// cannot be computed past it.
func ParseVersionEdit(data []byte) (*VersionEdit, error) {
	edit := &VersionEdit{}
	off := 0
	for off < len(data) {
		tag, n, err := readUvarintAt(data, off)
		if err != nil {
			return nil, err
		}
		off += n

		switch tag {
		case tagComparator:
			name, n, err := readLengthPrefixed(data, off)
			if err != nil {
				return nil, fmt.Errorf("comparator: %w", err)
			}
			edit.Comparator = string(name)
			off += n
		case tagLogNumber:
			edit.LogNumber, n, err = readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("log number: %w", err)
			}
			edit.HasLogNumber = true
			off += n
		case tagPrevLogNumber:
			edit.PrevLogNumber, n, err = readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("previous log number: %w", err)
			}
			edit.HasPrevLogNumber = true
			off += n
		case tagNextFileNumber:
			edit.NextFileNumber, n, err = readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("next file number: %w", err)
			}
			edit.HasNextFileNumber = true
			off += n
		case tagLastSequence:
			edit.LastSequence, n, err = readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("last sequence: %w", err)
			}
			edit.HasLastSequence = true
			off += n
		case tagCompactPointer:
			level, n, err := readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("compact pointer level: %w", err)
			}
			off += n
			key, n, err := readLengthPrefixed(data, off)
			if err != nil {
				return nil, fmt.Errorf("compact pointer key: %w", err)
			}
			off += n
			edit.CompactPointers = append(edit.CompactPointers, CompactPointer{Level: int(level), Key: key})
		case tagDeletedFile:
			level, n, err := readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("deleted file level: %w", err)
			}
			off += n
			number, n, err := readUvarintAt(data, off)
			if err != nil {
				return nil, fmt.Errorf("deleted file number: %w", err)
			}
			off += n
			edit.DeletedFiles = append(edit.DeletedFiles, DeletedFile{Level: int(level), Number: number})
		case tagNewFile:
			meta, n, err := readFileMeta(data, off)
			if err != nil {
				return nil, fmt.Errorf("new file: %w", err)
			}
			off += n
			edit.NewFiles = append(edit.NewFiles, meta)
		default:
			return nil, fmt.Errorf("manifest tag %d at %d: %w", tag, off-n, types.ErrUnsupported)
		}
	}
	return edit, nil
}

func readFileMeta(data []byte, off int) (FileMeta, int, error) {
	var meta FileMeta
	start := off

	level, n, err := readUvarintAt(data, off)
	if err != nil {
		return meta, 0, err
	}
	meta.Level = int(level)
	off += n

	if meta.Number, n, err = readUvarintAt(data, off); err != nil {
		return meta, 0, err
	}
	off += n
	if meta.Size, n, err = readUvarintAt(data, off); err != nil {
		return meta, 0, err
	}
	off += n
	if meta.SmallestKey, n, err = readLengthPrefixed(data, off); err != nil {
		return meta, 0, err
	}
	off += n
	if meta.LargestKey, n, err = readLengthPrefixed(data, off); err != nil {
		return meta, 0, err
	}
	off += n

	return meta, off - start, nil
}

// ManifestReader yields version edits from a MANIFEST descriptor file, which
// shares the write-ahead log's physical block layout.
type ManifestReader struct {
	log *LogReader
}

// NewManifestReader returns a reader over a complete manifest file image.
func NewManifestReader(data []byte, opts types.OpenOptions) *ManifestReader {
	return &ManifestReader{log: NewLogReader(data, opts)}
}

// ReadEdit returns the next version edit, or io.EOF after the last one.
func (r *ManifestReader) ReadEdit() (*VersionEdit, error) {
	rec, err := r.log.ReadRecord()
	if err != nil {
		return nil, err
	}
	edit, err := ParseVersionEdit(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("manifest record at %d: %w", rec.Offset, err)
	}
	return edit, nil
}

// ReadAll collects every remaining version edit.
func (r *ManifestReader) ReadAll() ([]*VersionEdit, error) {
	var out []*VersionEdit
	for {
		edit, err := r.ReadEdit()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, edit)
	}
}
