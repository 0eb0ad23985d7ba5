package capture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-virtual-capture/pkg/vcam"
)

// Config holds the full daemon configuration.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	API     APIConfig      `yaml:"api"`
}

// DeviceConfig configures one virtual device pipeline: which slot to
// bind, where frames come from, how they are transferred, and which
// OS-facing sink consumes the surface.
type DeviceConfig struct {
	Slot     int            `yaml:"slot"`
	Output   OutputConfig   `yaml:"output"`
	Source   SourceConfig   `yaml:"source"`
	Sink     SinkConfig     `yaml:"sink"`
	Transfer TransferConfig `yaml:"transfer"`
}

// OutputConfig is the device's expected output resolution, the target of
// linear-scale transfers.
type OutputConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SourceConfig configures the frame producer.
type SourceConfig struct {
	Type       string `yaml:"type"`        // pattern
	Width      int    `yaml:"width"`       // 1920
	Height     int    `yaml:"height"`      // 1080
	Framerate  int    `yaml:"framerate"`   // 30, 60
	Format     string `yaml:"format"`      // rgba, bgra, rgba16f
	ColorSpace string `yaml:"color_space"` // gamma, linear
}

// SinkConfig configures the OS-facing consumer.
type SinkConfig struct {
	Type    string `yaml:"type"` // mjpeg, v4l2, ffmpeg, discard
	Addr    string `yaml:"addr"` // mjpeg listen address
	Path    string `yaml:"path"` // v4l2 node or ffmpeg output file
	Codec   string `yaml:"codec"`
	Preset  string `yaml:"preset"`
	Bitrate int    `yaml:"bitrate"`
}

// TransferConfig configures per-frame transfer options.
type TransferConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Resize       string        `yaml:"resize"` // none, linear
	Mirror       string        `yaml:"mirror"` // none, horizontal
	DoubleBuffer bool          `yaml:"double_buffer"`
}

// APIConfig configures the control API.
type APIConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Source.Type == "" {
			d.Source.Type = "pattern"
		}
		if d.Source.Width == 0 {
			d.Source.Width = 1280
		}
		if d.Source.Height == 0 {
			d.Source.Height = 720
		}
		if d.Source.Framerate == 0 {
			d.Source.Framerate = 30
		}
		if d.Source.Format == "" {
			d.Source.Format = string(vcam.FormatRGBA)
		}
		if d.Source.ColorSpace == "" {
			d.Source.ColorSpace = string(vcam.ColorSpaceGamma)
		}
		if d.Sink.Type == "" {
			d.Sink.Type = "mjpeg"
		}
		if d.Transfer.Timeout == 0 {
			d.Transfer.Timeout = 500 * time.Millisecond
		}
		if d.Transfer.Resize == "" {
			d.Transfer.Resize = "none"
		}
		if d.Transfer.Mirror == "" {
			d.Transfer.Mirror = "none"
		}
	}
}

// transferOptions converts the yaml transfer block to vcam options.
func (t TransferConfig) transferOptions() (vcam.TransferOptions, error) {
	opts := vcam.TransferOptions{
		Timeout:      t.Timeout,
		DoubleBuffer: t.DoubleBuffer,
	}

	switch t.Resize {
	case "none":
		opts.Resize = vcam.ResizeNone
	case "linear":
		opts.Resize = vcam.ResizeLinear
	default:
		return opts, fmt.Errorf("unknown resize mode: %s", t.Resize)
	}

	switch t.Mirror {
	case "none":
		opts.Mirror = vcam.MirrorNone
	case "horizontal":
		opts.Mirror = vcam.MirrorHorizontal
	default:
		return opts, fmt.Errorf("unknown mirror mode: %s", t.Mirror)
	}

	return opts, nil
}
