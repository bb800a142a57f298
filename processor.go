package shapeloc

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/utils"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrNoPredictor is returned when a Processor is used without a predictor.
var ErrNoPredictor = errors.New("shapeloc: no landmark predictor")

// Processor options
type Processor struct {
	Predictor *Predictor
	// Detector locates the faces fed to the predictor. It is ignored when
	// Region is set. Without both the whole image is used as the region.
	Detector *FaceDetector
	Region   *geom.Rectangle
	// Drawer annotates the output image. A nil Drawer uses the defaults.
	Drawer *Drawer
	// Format forces the output format. "json" writes the landmarks instead of
	// an annotated image, which is also the case for destinations ending in .json.
	Format  string
	Logger  *zap.Logger
	Spinner *utils.Spinner
}

// Result is the JSON document written for an image.
type Result struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Faces  []Face `json:"faces"`
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Locate runs the landmark predictor over every face region of the image.
func (p *Processor) Locate(img image.Image) ([]Face, error) {
	if p.Predictor == nil {
		return nil, ErrNoPredictor
	}
	luma := NewLumaImage(img)
	regions := p.regions(luma)

	faces := make([]Face, 0, len(regions))
	for _, r := range regions {
		faces = append(faces, Face{
			Region:    r,
			Landmarks: p.Predictor.Run(luma, r),
		})
	}
	return faces, nil
}

// regions returns the rectangles the predictor is run on.
func (p *Processor) regions(luma *LumaImage) []geom.Rectangle {
	switch {
	case p.Region != nil:
		return []geom.Rectangle{*p.Region}
	case p.Detector != nil:
		return p.Detector.Detect(luma)
	default:
		return []geom.Rectangle{
			geom.NewRectangle(0, 0, float32(luma.Cols), float32(luma.Rows)),
		}
	}
}

// Process decodes the image from r, locates the landmarks and writes either
// the annotated image or the JSON result into w. The image format is
// chosen after the destination file extension.
func (p *Processor) Process(r io.Reader, w io.Writer) error {
	now := time.Now()

	img, err := decodeImage(r)
	if err != nil {
		return err
	}
	faces, err := p.Locate(img)
	if err != nil {
		return err
	}

	landmarks := 0
	for _, f := range faces {
		landmarks += len(f.Landmarks)
	}
	p.logger().Debug("landmarks located",
		zap.Int("faces", len(faces)),
		zap.Int("landmarks", landmarks),
		zap.Duration("elapsed", time.Since(now)),
	)

	ext := destExt(w)
	if strings.EqualFold(p.Format, "json") || ext == ".json" {
		enc := gojson.NewEncoder(w)
		enc.SetIndent("", "  ")
		res := Result{
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
			Faces:  faces,
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("could not encode the landmarks: %w", err)
		}
		return nil
	}

	drawer := p.Drawer
	if drawer == nil {
		drawer = NewDrawer()
	}
	if err := drawer.Draw(img, faces); err != nil {
		return err
	}
	return encodeImage(w, img, ext)
}

// destExt returns the lower-cased extension of the destination file.
// Pipes and other writers have no extension.
func destExt(w io.Writer) string {
	if f, ok := w.(*os.File); ok {
		return strings.ToLower(filepath.Ext(f.Name()))
	}
	return ""
}
