package shapeloc

import (
	"fmt"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
	"github.com/esimov/shapeloc/geom"
	"github.com/esimov/shapeloc/shape"
	"github.com/esimov/shapeloc/utils"
)

// FaceDetector finds the face regions fed to the landmark predictor.
// It wraps a pigo cascade classifier; the zero value of every option
// falls back to a sensible default.
type FaceDetector struct {
	// MinSize and MaxSize bound the detection window in pixels.
	// A zero MaxSize means the larger image dimension.
	MinSize int
	MaxSize int
	// ShiftFactor is the window step relative to its size.
	ShiftFactor float64
	// ScaleFactor is the window growth between two scales.
	ScaleFactor float64
	// Angle is the in-plane rotation in the 0-1 range, where 1 means 2π.
	Angle float64
	// IoUThreshold is the overlap above which detections are merged.
	IoUThreshold float64
	// MinScore drops detections with a lower classifier score.
	MinScore float32

	classifier *pigo.Pigo
}

// NewFaceDetector unpacks a pigo face cascade.
func NewFaceDetector(cascade []byte) (fd *FaceDetector, err error) {
	// pigo indexes the packet without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			fd, err = nil, fmt.Errorf("error unpacking the cascade file: %v", r)
		}
	}()
	if len(cascade) < 16 {
		return nil, fmt.Errorf("error unpacking the cascade file: %d bytes is too short", len(cascade))
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return &FaceDetector{
		MinSize:      20,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinScore:     5,
		classifier:   classifier,
	}, nil
}

// LoadFaceDetector reads and unpacks a pigo face cascade file.
func LoadFaceDetector(path string) (*FaceDetector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &shape.IOError{Op: "read cascade", Path: path, Err: err}
	}
	return NewFaceDetector(data)
}

// Detect returns the face regions found in the image, the most confident first.
func (fd *FaceDetector) Detect(img *LumaImage) []geom.Rectangle {
	params := pigo.CascadeParams{
		MinSize:     utils.Max(fd.MinSize, 1),
		MaxSize:     fd.MaxSize,
		ShiftFactor: fd.ShiftFactor,
		ScaleFactor: fd.ScaleFactor,
		ImageParams: img.ImageParams(),
	}
	if params.MaxSize <= 0 {
		params.MaxSize = utils.Max(img.Cols, img.Rows)
	}
	if params.ShiftFactor <= 0 {
		params.ShiftFactor = 0.1
	}
	if params.ScaleFactor <= 1 {
		params.ScaleFactor = 1.1
	}

	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := fd.classifier.RunCascade(params, fd.Angle)
	dets = fd.classifier.ClusterDetections(dets, fd.IoUThreshold)
	return detectionsToRects(dets, fd.MinScore)
}

// detectionsToRects converts the square detection windows centered on
// (Col, Row) into rectangles.
func detectionsToRects(dets []pigo.Detection, minScore float32) []geom.Rectangle {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	rects := make([]geom.Rectangle, 0, len(dets))
	for _, d := range dets {
		if d.Q < minScore {
			continue
		}
		half := float32(d.Scale) / 2
		rects = append(rects, geom.NewRectangle(
			float32(d.Col)-half,
			float32(d.Row)-half,
			float32(d.Scale),
			float32(d.Scale),
		))
	}
	return rects
}
