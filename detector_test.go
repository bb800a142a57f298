package shapeloc

import (
	"path/filepath"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
	"github.com/stretchr/testify/assert"
)

func TestDetector_DetectionsToRects(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 50, Col: 40, Scale: 20, Q: 6},
		{Row: 100, Col: 100, Scale: 60, Q: 12},
		{Row: 10, Col: 10, Scale: 8, Q: 1},
	}

	rects := detectionsToRects(dets, 5)
	assert.Equal(t, []geom.Rectangle{
		geom.NewRectangle(70, 70, 60, 60),
		geom.NewRectangle(30, 40, 20, 20),
	}, rects)

	assert.Empty(t, detectionsToRects(nil, 0))
}

func TestDetector_LoadMissingCascade(t *testing.T) {
	_, err := LoadFaceDetector(filepath.Join(t.TempDir(), "facefinder"))
	assert.ErrorIs(t, err, shape.ErrIO)
}

func TestDetector_InvalidCascade(t *testing.T) {
	_, err := NewFaceDetector([]byte{1, 2, 3})
	assert.Error(t, err)
}
