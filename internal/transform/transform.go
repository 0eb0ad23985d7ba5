// Package transform implements the pixel operations of the frame
// transfer pipeline: linear-scale resize and horizontal mirroring, for
// 8-bit and half-float HDR layouts.
package transform

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/x448/float16"
	"golang.org/x/image/draw"
)

// ResizeRGBA linearly scales a 4-byte-per-pixel frame to dw x dh and
// returns a freshly allocated buffer. Channels are interpolated
// independently, so RGBA and BGRA layouts both scale correctly.
func ResizeRGBA(src []byte, sw, sh, dw, dh int) []byte {
	in := &image.RGBA{
		Pix:    src[:sw*sh*4],
		Stride: sw * 4,
		Rect:   image.Rect(0, 0, sw, sh),
	}
	out := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(out, out.Rect, in, in.Rect, draw.Src, nil)
	return out.Pix
}

// ResizeRGBA16F linearly scales an 8-byte-per-pixel half-float frame to
// dw x dh. Samples are decoded to float32, interpolated, and re-encoded,
// preserving HDR values beyond the 8-bit range.
func ResizeRGBA16F(src []byte, sw, sh, dw, dh int) []byte {
	dst := make([]byte, dw*dh*8)

	for y := 0; y < dh; y++ {
		fy := (float64(y)+0.5)*float64(sh)/float64(dh) - 0.5
		if fy < 0 {
			fy = 0
		}
		y0 := int(math.Floor(fy))
		if y0 > sh-1 {
			y0 = sh - 1
		}
		y1 := y0 + 1
		if y1 > sh-1 {
			y1 = sh - 1
		}
		wy := float32(fy - float64(y0))

		for x := 0; x < dw; x++ {
			fx := (float64(x)+0.5)*float64(sw)/float64(dw) - 0.5
			if fx < 0 {
				fx = 0
			}
			x0 := int(math.Floor(fx))
			if x0 > sw-1 {
				x0 = sw - 1
			}
			x1 := x0 + 1
			if x1 > sw-1 {
				x1 = sw - 1
			}
			wx := float32(fx - float64(x0))

			di := (y*dw + x) * 8
			for c := 0; c < 4; c++ {
				v00 := sampleHalf(src, sw, x0, y0, c)
				v10 := sampleHalf(src, sw, x1, y0, c)
				v01 := sampleHalf(src, sw, x0, y1, c)
				v11 := sampleHalf(src, sw, x1, y1, c)

				top := v00 + (v10-v00)*wx
				bot := v01 + (v11-v01)*wx
				v := top + (bot-top)*wy

				binary.LittleEndian.PutUint16(dst[di+c*2:], float16.Fromfloat32(v).Bits())
			}
		}
	}
	return dst
}

func sampleHalf(src []byte, stride, x, y, c int) float32 {
	i := (y*stride+x)*8 + c*2
	return float16.Frombits(binary.LittleEndian.Uint16(src[i:])).Float32()
}

// MirrorHorizontal flips a frame left/right in place. bpp is the pixel
// stride in bytes (4 for 8-bit formats, 8 for half-float).
func MirrorHorizontal(data []byte, w, h, bpp int) {
	var tmp [16]byte
	px := tmp[:bpp]
	for y := 0; y < h; y++ {
		row := data[y*w*bpp : (y+1)*w*bpp]
		for x := 0; x < w/2; x++ {
			l := row[x*bpp : x*bpp+bpp]
			r := row[(w-1-x)*bpp : (w-1-x)*bpp+bpp]
			copy(px, l)
			copy(l, r)
			copy(r, px)
		}
	}
}
