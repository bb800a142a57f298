package shapeloc

import (
	"fmt"
	"path/filepath"

	"github.com/esimov/shapeloc/shape"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultRegistrySize is the number of models kept by a registry created with size 0.
const DefaultRegistrySize = 4

// Registry keeps the most recently used predictors keyed by model path, so
// that repeated runs share a single immutable model. Concurrent requests
// for a model which is not loaded yet result in a single load.
type Registry struct {
	// LoadFn reads a model from disk. It defaults to Load.
	LoadFn func(path string) (*shape.Model, error)

	cache *lru.Cache[string, *Predictor]
	group singleflight.Group
}

// NewRegistry creates a registry holding at most size predictors.
func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	c, err := lru.New[string, *Predictor](size)
	if err != nil {
		return nil, fmt.Errorf("could not create the model registry: %w", err)
	}
	return &Registry{LoadFn: Load, cache: c}, nil
}

// Predictor returns the predictor of the model stored at path, loading it on first use.
func (r *Registry) Predictor(path string) (*Predictor, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	if p, ok := r.cache.Get(key); ok {
		return p, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if p, ok := r.cache.Get(key); ok {
			return p, nil
		}
		m, err := r.LoadFn(path)
		if err != nil {
			return nil, err
		}
		p := NewPredictor(m)
		r.cache.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Predictor), nil
}

// Len returns the number of loaded models.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Purge drops every loaded model.
func (r *Registry) Purge() {
	r.cache.Purge()
}
