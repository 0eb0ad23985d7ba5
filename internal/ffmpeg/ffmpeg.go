// Package ffmpeg wraps FFmpeg binary execution for the recording sink.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// FFmpeg wraps FFmpeg binary execution
type FFmpeg struct {
	binaryPath string
}

// New creates a new FFmpeg wrapper
func New() (*FFmpeg, error) {
	path, err := findBinary("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &FFmpeg{binaryPath: path}, nil
}

// findBinary locates a binary in PATH or common locations
func findBinary(name string) (string, error) {
	// Try PATH first
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	// Common locations by OS
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/opt/homebrew/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "linux":
		paths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		paths = []string{
			"C:\\ffmpeg\\bin\\" + name + ".exe",
			"C:\\Program Files\\ffmpeg\\bin\\" + name + ".exe",
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common locations", name)
}

// Version returns the FFmpeg version string
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, f.binaryPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("no version output")
}

// RawEncoderConfig configures a rawvideo-from-stdin encoding process.
type RawEncoderConfig struct {
	Width     int
	Height    int
	PixFmt    string // rgba, bgra, rgba64le
	Framerate int
	Codec     string // h264, hevc
	Preset    string
	Bitrate   int // kbps
	Output    string
}

// RawEncoder is a running FFmpeg process consuming raw frames on stdin.
type RawEncoder struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// StartRawEncoder starts an FFmpeg process that reads raw frames from
// stdin and encodes them to the configured output file.
func (f *FFmpeg) StartRawEncoder(ctx context.Context, cfg RawEncoderConfig) (*RawEncoder, error) {
	if cfg.Framerate <= 0 {
		cfg.Framerate = 30
	}
	if cfg.Preset == "" {
		cfg.Preset = "fast"
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 6000
	}

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", cfg.PixFmt,
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", fmt.Sprintf("%d", cfg.Framerate),
		"-i", "pipe:0",
	}

	switch cfg.Codec {
	case "hevc", "h265":
		args = append(args, "-c:v", "libx265")
	default:
		args = append(args, "-c:v", "libx264")
	}

	args = append(args,
		"-preset", cfg.Preset,
		"-b:v", fmt.Sprintf("%dk", cfg.Bitrate),
		"-pix_fmt", "yuv420p",
		cfg.Output,
	)

	cmd := exec.CommandContext(ctx, f.binaryPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &RawEncoder{cmd: cmd, stdin: stdin}, nil
}

// WriteFrame pipes one raw frame into the encoder.
func (e *RawEncoder) WriteFrame(data []byte) error {
	_, err := e.stdin.Write(data)
	return err
}

// Close flushes stdin and waits for the encoder to finish the file.
func (e *RawEncoder) Close() error {
	e.stdin.Close()
	return e.cmd.Wait()
}
