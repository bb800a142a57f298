package shapeloc

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/esimov/shapeloc/cache"
	"github.com/esimov/shapeloc/dlib"
	"github.com/esimov/shapeloc/shape"
)

// ImportDlib reads a shape predictor serialized by dlib.
func ImportDlib(path string) (*shape.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &shape.IOError{Op: "read", Path: path, Err: err}
	}
	m, err := dlib.DecodeModel(data)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return m, nil
}

// LoadCache reads a model written by SaveCache.
func LoadCache(path string) (*shape.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &shape.IOError{Op: "read", Path: path, Err: err}
	}
	m, err := cache.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// Load reads a model in either format, telling them apart by the cache magic.
func Load(path string) (*shape.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &shape.IOError{Op: "read", Path: path, Err: err}
	}

	var m *shape.Model
	if cache.IsCache(data) {
		m, err = cache.Decode(data)
	} else {
		m, err = dlib.DecodeModel(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// SaveCache writes the model in the cache format. The file is written to a
// temporary sibling first and renamed into place, so readers never observe
// a partially written cache.
func SaveCache(path string, m *shape.Model, opts ...cache.Option) error {
	data, err := cache.Encode(m, opts...)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return &shape.IOError{Op: "create", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &shape.IOError{Op: "write", Path: tmp.Name(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &shape.IOError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &shape.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Convert imports a dlib model and stores it in the cache format.
func Convert(src, dst string, opts ...cache.Option) (*shape.Model, error) {
	m, err := ImportDlib(src)
	if err != nil {
		return nil, err
	}
	if err := SaveCache(dst, m, opts...); err != nil {
		return nil, err
	}
	return m, nil
}
