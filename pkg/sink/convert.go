package sink

import (
	"encoding/binary"

	"github.com/x448/float16"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// toRGBA converts a published frame to tightly packed 8-bit RGBA, the
// common input layout for all sink backends. HDR half-float frames are
// clamped into display range; gamma-encoded 8-bit frames pass through.
func toRGBA(f *vcam.PublishedFrame) []byte {
	n := f.Width * f.Height

	switch f.Format {
	case vcam.FormatRGBA:
		out := make([]byte, n*4)
		copy(out, f.Data[:n*4])
		return out

	case vcam.FormatBGRA:
		out := make([]byte, n*4)
		for i := 0; i < n; i++ {
			out[i*4+0] = f.Data[i*4+2]
			out[i*4+1] = f.Data[i*4+1]
			out[i*4+2] = f.Data[i*4+0]
			out[i*4+3] = f.Data[i*4+3]
		}
		return out

	case vcam.FormatRGBA16F:
		out := make([]byte, n*4)
		for i := 0; i < n; i++ {
			for c := 0; c < 4; c++ {
				v := float16.Frombits(binary.LittleEndian.Uint16(f.Data[i*8+c*2:])).Float32()
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				out[i*4+c] = uint8(v*255 + 0.5)
			}
		}
		return out
	}
	return nil
}
