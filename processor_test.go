package shapeloc

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/esimov/shapeloc/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHalfImage returns a gray image which is bright on its left half.
func newHalfImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(50)
			if x < w/2 {
				v = 200
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 0xff})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessor_LocateWithoutPredictor(t *testing.T) {
	p := &Processor{}
	_, err := p.Locate(newHalfImage(10, 10))
	assert.ErrorIs(t, err, ErrNoPredictor)
}

func TestProcessor_LocateRegions(t *testing.T) {
	p := &Processor{Predictor: NewPredictor(newSplitModel())}

	faces, err := p.Locate(newHalfImage(100, 100))
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, geom.NewRectangle(0, 0, 100, 100), faces[0].Region)
	require.Len(t, faces[0].Landmarks, 1)
	assert.InDelta(t, 60, faces[0].Landmarks[0].X, 1e-3)
	assert.InDelta(t, 50, faces[0].Landmarks[0].Y, 1e-3)

	// An explicit region takes precedence over the whole image.
	region := geom.NewRectangle(0, 0, 50, 50)
	p.Region = &region
	faces, err = p.Locate(newHalfImage(100, 100))
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, region, faces[0].Region)
}

func TestProcessor_ProcessJSON(t *testing.T) {
	p := &Processor{Predictor: NewPredictor(newSplitModel()), Format: "JSON"}

	var out bytes.Buffer
	require.NoError(t, p.Process(bytes.NewReader(encodePNG(t, newHalfImage(100, 80))), &out))

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 100, res.Width)
	assert.Equal(t, 80, res.Height)
	require.Len(t, res.Faces, 1)
	require.Len(t, res.Faces[0].Landmarks, 1)
	assert.InDelta(t, 60, res.Faces[0].Landmarks[0].X, 1e-3)
	assert.InDelta(t, 40, res.Faces[0].Landmarks[0].Y, 1e-3)
	assert.True(t, strings.Contains(out.String(), `"landmarks"`))
}

func TestProcessor_ProcessJSONFile(t *testing.T) {
	p := &Processor{Predictor: NewPredictor(newTestModel())}

	path := filepath.Join(t.TempDir(), "face.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	err = p.Process(bytes.NewReader(encodePNG(t, newHalfImage(64, 64))), f)
	require.NoError(t, f.Close())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var res Result
	require.NoError(t, json.Unmarshal(data, &res))
	require.Len(t, res.Faces, 1)
	assert.Len(t, res.Faces[0].Landmarks, 3)
}

func TestProcessor_ProcessImage(t *testing.T) {
	p := &Processor{Predictor: NewPredictor(newSplitModel())}

	path := filepath.Join(t.TempDir(), "face.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	err = p.Process(bytes.NewReader(encodePNG(t, newHalfImage(100, 100))), f)
	require.NoError(t, f.Close())
	require.NoError(t, err)

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	img, err := png.Decode(r)
	require.NoError(t, err)

	out := imgToNRGBA(img)
	assert.Equal(t, DefaultPointColor, out.NRGBAAt(60, 50))
	assert.Equal(t, DefaultRectColor, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 50, G: 50, B: 50, A: 0xff}, out.NRGBAAt(80, 80))
}

func TestProcessor_ProcessErrors(t *testing.T) {
	p := &Processor{Predictor: NewPredictor(newSplitModel())}

	var out bytes.Buffer
	assert.Error(t, p.Process(strings.NewReader("not an image"), &out))

	path := filepath.Join(t.TempDir(), "face.tiff")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Error(t, p.Process(bytes.NewReader(encodePNG(t, newHalfImage(10, 10))), f))
}
