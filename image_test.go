package shapeloc

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"testing"

	"github.com/esimov/shapeloc/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_ImgToNRGBA(t *testing.T) {
	rect := image.Rect(-1, -1, 15, 15)
	colors := palette.Plan9
	testCases := []struct {
		name string
		img  image.Image
	}{
		{name: "NRGBA", img: makeNRGBAImage(rect, colors)},
		{name: "Gray", img: makeGrayImage(rect)},
		{name: "YCbCr-444", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio444)},
		{name: "YCbCr-422", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio422)},
		{name: "YCbCr-420", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio420)},
		{name: "YCbCr-440", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio440)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dst := imgToNRGBA(tc.img)
			r := tc.img.Bounds()
			require.Equal(t, image.Rect(0, 0, r.Dx(), r.Dy()), dst.Bounds())

			for y := r.Min.Y; y < r.Max.Y; y++ {
				for x := r.Min.X; x < r.Max.X; x++ {
					want := color.NRGBAModel.Convert(tc.img.At(x, y)).(color.NRGBA)
					got := dst.NRGBAAt(x-r.Min.X, y-r.Min.Y)
					if !closeColor(want, got, 1) {
						t.Fatalf("pixel (%d, %d): got %v want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestImage_ImgToNRGBAKeepsZeroBasedNRGBA(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, img, imgToNRGBA(img))
}

func TestImage_LumaImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{177, 177, 177, 255})
		}
	}
	img.Set(3, 2, color.RGBA{255, 255, 255, 255})

	luma := NewLumaImage(img)
	assert.Equal(t, 4, luma.Width())
	assert.Equal(t, 3, luma.Height())
	assert.InDelta(t, 177, luma.LumaIntensity(0, 0), 1)
	assert.InDelta(t, 255, luma.LumaIntensity(3, 2), 1)

	params := luma.ImageParams()
	assert.Equal(t, 3, params.Rows)
	assert.Equal(t, 4, params.Cols)
	assert.Equal(t, 4, params.Dim)
	assert.Len(t, params.Pixels, 12)
}

func TestImage_EncodeDecode(t *testing.T) {
	src := makeNRGBAImage(image.Rect(0, 0, 8, 8), palette.WebSafe)
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}

	for _, ext := range []string{".png", ".bmp", ".jpg", ""} {
		t.Run(ext, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, encodeImage(&buf, src, ext))

			img, err := decodeImage(&buf)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), img.Bounds())
		})
	}

	assert.Error(t, encodeImage(&bytes.Buffer{}, src, ".tiff"))

	_, err := decodeImage(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestImage_IsImageExt(t *testing.T) {
	assert.True(t, isImageExt("face.JPG"))
	assert.True(t, isImageExt("dir/face.webp"))
	assert.False(t, isImageExt("model.dat"))
	assert.False(t, isImageExt("landmarks.json"))
}

func makeYCbCrImage(rect image.Rectangle, colors []color.Color, sr image.YCbCrSubsampleRatio) *image.YCbCr {
	img := image.NewYCbCr(rect, sr)
	j := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			iy := img.YOffset(x, y)
			ic := img.COffset(x, y)
			c := color.NRGBAModel.Convert(colors[j%len(colors)]).(color.NRGBA)
			img.Y[iy], img.Cb[ic], img.Cr[ic] = color.RGBToYCbCr(c.R, c.G, c.B)
			j++
		}
	}
	return img
}

func makeNRGBAImage(rect image.Rectangle, colors []color.Color) *image.NRGBA {
	img := image.NewNRGBA(rect)
	i := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := color.NRGBAModel.Convert(colors[i%len(colors)]).(color.NRGBA)
			c.A = uint8(i % 256)
			img.SetNRGBA(x, y, c)
			i++
		}
	}
	return img
}

func makeGrayImage(rect image.Rectangle) *image.Gray {
	img := image.NewGray(rect)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func closeColor(a, b color.NRGBA, delta int) bool {
	return utils.Abs(int(a.R)-int(b.R)) <= delta &&
		utils.Abs(int(a.G)-int(b.G)) <= delta &&
		utils.Abs(int(a.B)-int(b.B)) <= delta &&
		utils.Abs(int(a.A)-int(b.A)) <= delta
}
