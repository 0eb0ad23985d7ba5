package vcam

// Result is the outcome of a single frame transfer.
// Every SendFrame returns one of these synchronously; the backend never
// panics or blocks past the configured timeout.
type Result int

const (
	// Success means the frame (transformed per options) is now visible
	// on the device surface.
	Success Result = iota

	// WarningFrameSkip means a previously published, still unconsumed
	// frame was discarded to make room. The frame just sent is live.
	WarningFrameSkip

	// WarningInactive means no consumer was ready within the transfer
	// timeout. The frame was dropped; nothing was published.
	WarningInactive

	// ErrUnsupportedBackend means the device's configured output backend
	// is not available in this build or on this platform.
	ErrUnsupportedBackend

	// ErrParameter means the transfer options are malformed.
	ErrParameter

	// ErrTooLarge means the frame exceeds the device maximum resolution.
	ErrTooLarge

	// ErrPixelFormat means the frame's pixel format is not supported.
	ErrPixelFormat

	// ErrReadFrame means the frame's pixel data could not be read
	// (missing or shorter than the dimensions imply).
	ErrReadFrame

	// ErrClosedSession means the session is closed or was never bound.
	ErrClosedSession
)

// String returns the wire-stable name of the result code.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case WarningFrameSkip:
		return "warning_frameskip"
	case WarningInactive:
		return "warning_inactive"
	case ErrUnsupportedBackend:
		return "error_unsupported_backend"
	case ErrParameter:
		return "error_parameter"
	case ErrTooLarge:
		return "error_too_large_resolution"
	case ErrPixelFormat:
		return "error_pixel_format"
	case ErrReadFrame:
		return "error_read_frame"
	case ErrClosedSession:
		return "error_closed_session"
	default:
		return "unknown"
	}
}

// OK reports whether the transfer delivered or intentionally dropped the
// frame (success or warning). Errors indicate a caller-side problem that
// will not resolve without a configuration change.
func (r Result) OK() bool {
	return r == Success || r == WarningFrameSkip || r == WarningInactive
}

// ResizeMode selects how a frame is fitted to the device output resolution.
type ResizeMode int

const (
	ResizeNone   ResizeMode = iota // publish at source resolution
	ResizeLinear                   // linear scale to the device output resolution
)

// MirrorMode selects an optional flip applied before publishing.
type MirrorMode int

const (
	MirrorNone       MirrorMode = iota
	MirrorHorizontal            // flip left/right
)
