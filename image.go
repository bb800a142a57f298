package shapeloc

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/webp" // register the webp decoder
)

// LumaImage is a grayscale pixel buffer implementing ImageQuery.
type LumaImage struct {
	Pix  []uint8
	Cols int
	Rows int
}

var _ ImageQuery = (*LumaImage)(nil)

// NewLumaImage converts any image to its grayscale representation.
func NewLumaImage(img image.Image) *LumaImage {
	src := imgToNRGBA(img)
	return &LumaImage{
		Pix:  pigo.RgbToGrayscale(src),
		Cols: src.Bounds().Dx(),
		Rows: src.Bounds().Dy(),
	}
}

// Width returns the number of columns.
func (l *LumaImage) Width() int { return l.Cols }

// Height returns the number of rows.
func (l *LumaImage) Height() int { return l.Rows }

// LumaIntensity returns the gray value of the pixel at (x, y) in the 0-255 range.
func (l *LumaImage) LumaIntensity(x, y int) float32 {
	return float32(l.Pix[y*l.Cols+x])
}

// ImageParams exposes the buffer in the layout expected by the pigo face detector.
func (l *LumaImage) ImageParams() pigo.ImageParams {
	return pigo.ImageParams{
		Pixels: l.Pix,
		Rows:   l.Rows,
		Cols:   l.Cols,
		Dim:    l.Cols,
	}
}

// decodeImage decodes an image honoring its EXIF orientation.
func decodeImage(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("could not decode the source image: %w", err)
	}
	return imgToNRGBA(img), nil
}

// encodeImage encodes the image in the format matching the destination
// extension. An empty extension (pipes) produces a JPEG.
func encodeImage(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case "", ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 100})
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format: %q", ext)
	}
}

// isImageExt reports whether the file name has one of the supported image extensions.
func isImageExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp":
		return true
	}
	return false
}

// imgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func imgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := srcBounds.Dx() * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(img.At(srcMinX+dstX, srcMinY+dstY)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}

	return dst
}
