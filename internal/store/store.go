// Package store provides the namespaced persistent key-value store that
// keeps the load-cell zero reference across power cycles.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Store reads and writes integer values.
type Store interface {
	// GetLong returns the value for key, or def if it was never written.
	GetLong(key string, def int64) (int64, error)
	// PutLong durably writes value under key.
	PutLong(key string, value int64) error
}

// ErrNotFound is returned by Lookup when a key was never written.
var ErrNotFound = errors.New("key not found")

// Well-known keys and namespaces.
const (
	KeyTareOffset    = "tareOffset"
	DefaultNamespace = "nevera-app"
	DefaultPath      = "/var/lib/fridge-sensor/store.yaml"

	filePermissions = 0o600
)

// File is a Store backed by a YAML document mapping namespace to key to value.
// Writes replace the whole file through a rename so a power cut leaves either
// the old or the new document.
type File struct {
	path      string
	namespace string

	mu sync.Mutex
}

// NewFile creates a store for namespace in the YAML file at path.
// The file is created on the first write.
func NewFile(path, namespace string) *File {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &File{path: filepath.Clean(path), namespace: namespace}
}

type document map[string]map[string]int64

func (f *File) load() (document, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return document{}, nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read store %s", f.path)
	}

	doc := document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode store %s", f.path)
	}
	return doc, nil
}

// Lookup returns the value for key or ErrNotFound.
func (f *File) Lookup(key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return 0, err
	}
	v, ok := doc[f.namespace][key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// GetLong returns the value for key, or def if it was never written.
func (f *File) GetLong(key string, def int64) (int64, error) {
	v, err := f.Lookup(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return v, nil
}

// PutLong writes value under key, keeping every other namespace and key.
func (f *File) PutLong(key string, value int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if doc[f.namespace] == nil {
		doc[f.namespace] = map[string]int64{}
	}
	doc[f.namespace][key] = value

	data, err := yaml.Marshal(doc)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode store")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.path)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace %s", f.path)
	}
	return nil
}
