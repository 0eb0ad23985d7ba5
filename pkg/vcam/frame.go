package vcam

import "time"

// PixelFormat identifies the memory layout of frame pixel data.
type PixelFormat string

const (
	FormatRGBA    PixelFormat = "rgba"    // 8-bit per channel, 4 bytes/pixel
	FormatBGRA    PixelFormat = "bgra"    // 8-bit per channel, 4 bytes/pixel
	FormatRGBA16F PixelFormat = "rgba16f" // half-float per channel, 8 bytes/pixel (HDR)
)

// ColorSpace tags how pixel values are encoded so consumers can interpret
// HDR vs SDR data correctly.
type ColorSpace string

const (
	ColorSpaceGamma  ColorSpace = "gamma"  // sRGB display-curve encoded
	ColorSpaceLinear ColorSpace = "linear" // no display curve
)

// Device resolution ceiling. Frames larger than this are rejected per call.
const (
	MaxWidth  = 3840
	MaxHeight = 2160
)

// Frame describes one rendered frame handed to SendFrame. The backend
// reads Data synchronously during the call and never retains it past
// return; the caller keeps ownership.
type Frame struct {
	Width      int
	Height     int
	Format     PixelFormat
	ColorSpace ColorSpace
	Data       []byte
}

// BytesPerPixel returns the pixel stride of a format, or 0 when the
// format is outside the supported set.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA, FormatBGRA:
		return 4
	case FormatRGBA16F:
		return 8
	default:
		return 0
	}
}

// size returns the expected byte length of the frame's pixel data.
func (f *Frame) size() int {
	return f.Width * f.Height * f.Format.BytesPerPixel()
}

// PublishedFrame is one frame as visible on a device surface. Data is
// owned by the backend; consumers must treat it as immutable.
type PublishedFrame struct {
	Seq        uint64
	Width      int
	Height     int
	Format     PixelFormat
	ColorSpace ColorSpace
	Data       []byte
	Timestamp  time.Time
}
