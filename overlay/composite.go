// Package overlay draws annotations on a transparent layer and composites the
// layer onto the source image. Besides the source-over operator offered by
// image/draw it implements the whole set of Porter-Duff operators together
// with the separable blend modes, so the annotation color can be mixed with
// the backdrop instead of simply covering it.
package overlay

import (
	"fmt"
	"image"
	"strings"
)

// Op is a Porter-Duff composition operator.
type Op uint8

// The Porter-Duff operators, the layer being the source and the image the destination.
const (
	SrcOver Op = iota
	Copy
	DstOver
	SrcIn
	DstIn
	SrcOut
	DstOut
	SrcAtop
	DstAtop
	Xor
)

var opNames = [...]string{
	SrcOver: "src_over",
	Copy:    "copy",
	DstOver: "dst_over",
	SrcIn:   "src_in",
	DstIn:   "dst_in",
	SrcOut:  "src_out",
	DstOut:  "dst_out",
	SrcAtop: "src_atop",
	DstAtop: "dst_atop",
	Xor:     "xor",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseOp returns the operator with the given name. An empty name means SrcOver.
func ParseOp(name string) (Op, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return SrcOver, nil
	}
	for i, n := range opNames {
		if n == name {
			return Op(i), nil
		}
	}
	return SrcOver, fmt.Errorf("unsupported composition operator %q", name)
}

// factors returns the fractions of the source and the destination kept by the operator.
func (op Op) factors(as, ab float64) (fa, fb float64) {
	switch op {
	case Copy:
		return 1, 0
	case DstOver:
		return 1 - ab, 1
	case SrcIn:
		return ab, 0
	case DstIn:
		return 0, as
	case SrcOut:
		return 1 - ab, 0
	case DstOut:
		return 0, 1 - as
	case SrcAtop:
		return ab, 1 - as
	case DstAtop:
		return 1 - ab, as
	case Xor:
		return 1 - ab, 1 - as
	default:
		return 1, 1 - as
	}
}

// Composite mixes the layer into dst in place. Both images must have the same bounds.
func Composite(dst *image.NRGBA, layer *Layer, op Op, mode BlendMode) error {
	src := layer.Img
	if src.Bounds() != dst.Bounds() {
		return fmt.Errorf("layer bounds %v differ from image bounds %v", src.Bounds(), dst.Bounds())
	}

	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		si := src.PixOffset(b.Min.X, y)
		di := dst.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			s, d := src.Pix[si:si+4:si+4], dst.Pix[di:di+4:di+4]
			if op == SrcOver && s[3] == 0 {
				si += 4
				di += 4
				continue
			}

			as := float64(s[3]) / 255
			ab := float64(d[3]) / 255
			fa, fb := op.factors(as, ab)
			ao := as*fa + ab*fb

			for c := 0; c < 3; c++ {
				cs := float64(s[c]) / 255
				cb := float64(d[c]) / 255
				// The blended source color is weighted by the backdrop coverage.
				cs = (1-ab)*cs + ab*mode.blend(cb, cs)

				co := as*fa*cs + ab*fb*cb
				if ao > 0 {
					co /= ao
				}
				d[c] = toByte(co)
			}
			d[3] = toByte(ao)

			si += 4
			di += 4
		}
	}
	return nil
}

func toByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
