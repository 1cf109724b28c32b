package cim

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/artifactkit/artifactkit/pkg/types"
)

// Repository is an open CIM repository directory: the index binary tree and
// object store with their mapping files. A repository handle is owned by one
// caller and never shared.
type Repository struct {
	index   *IndexFile
	objects *ObjectsFile
	warn    *types.WarningList
	closed  bool
}

// Open opens the CIM repository at path on the host filesystem.
func Open(path string, opts types.OpenOptions) (*Repository, error) {
	return OpenFS(afero.NewOsFs(), path, opts)
}

// OpenFS opens a CIM repository directory on any filesystem. File names
// match case-insensitively since repositories copied off Windows systems
// carry inconsistent casing.
func OpenFS(fs afero.Fs, path string, opts types.OpenOptions) (*Repository, error) {
	r := &Repository{}
	if opts.CollectWarnings {
		r.warn = &types.WarningList{}
	}

	indexMapData, err := readRepositoryFile(fs, path, "index.map")
	if err != nil {
		return nil, err
	}
	indexMapping, err := ParseMappingFile(indexMapData)
	if err != nil {
		return nil, fmt.Errorf("index mapping: %w", err)
	}
	indexData, err := readRepositoryFile(fs, path, "index.btr")
	if err != nil {
		return nil, err
	}
	r.index = NewIndexFile(indexData, indexMapping, r.warn)

	objectsMapData, err := readRepositoryFile(fs, path, "objects.map")
	if err != nil {
		return nil, err
	}
	objectsMapping, err := ParseMappingFile(objectsMapData)
	if err != nil {
		return nil, fmt.Errorf("objects mapping: %w", err)
	}
	objectsData, err := readRepositoryFile(fs, path, "objects.data")
	if err != nil {
		return nil, err
	}
	r.objects = NewObjectsFile(objectsData, objectsMapping, r.warn)

	return r, nil
}

// readRepositoryFile loads a repository file by case-insensitive name.
func readRepositoryFile(fs afero.Fs, dir, name string) ([]byte, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), name) {
			data, err := afero.ReadFile(fs, dir+"/"+entry.Name())
			if err != nil {
				return nil, err
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("repository file %s not found in %s: %w", name, dir, types.ErrBadReference)
}

// Keys returns every B-tree key in tree order.
func (r *Repository) Keys() ([]string, error) {
	if r.closed {
		return nil, fmt.Errorf("repository: %w", types.ErrClosed)
	}
	return r.index.Keys()
}

// ObjectRecord resolves one B-tree key to its object record.
func (r *Repository) ObjectRecord(key string) (*ObjectRecord, error) {
	if r.closed {
		return nil, fmt.Errorf("repository: %w", types.ErrClosed)
	}
	return r.objects.ObjectRecordByKey(key)
}

// ClassDefinitions scans every key and decodes the class definition
// records. Per-key failures surface as warnings and the scan continues.
func (r *Repository) ClassDefinitions() ([]*ClassDefinition, error) {
	keys, err := r.Keys()
	if err != nil {
		return nil, err
	}
	var out []*ClassDefinition
	for _, key := range keys {
		rec, err := r.ObjectRecord(key)
		if err != nil {
			r.warn.Add(0, "class definition scan", fmt.Sprintf("key %s: %v", key, err))
			continue
		}
		if rec.Type != RecordTypeClassDefinition {
			continue
		}
		cd, err := ParseClassDefinition(rec.Data, r.warn)
		if err != nil {
			r.warn.Add(0, "class definition scan", fmt.Sprintf("key %s: %v", key, err))
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

// Warnings returns the anomalies tolerated so far.
func (r *Repository) Warnings() []types.Warning {
	return r.warn.All()
}

// Close releases the repository. Operating on a closed repository is an
// error, not a no-op.
func (r *Repository) Close() error {
	if r.closed {
		return fmt.Errorf("repository: %w", types.ErrClosed)
	}
	r.closed = true
	r.index = nil
	r.objects = nil
	return nil
}
