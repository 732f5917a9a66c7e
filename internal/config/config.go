package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings is wrapped by every validation failure reported by Validate.
var ErrInvalidSettings = errors.New("invalid encode settings")

const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"

	ContainerMP4 = "mp4"
	ContainerMOV = "mov"
	ContainerAVI = "avi"

	// VideoCodecAuto picks a hardware H.264 encoder when ffmpeg reports one.
	VideoCodecAuto = "auto"
)

// EncodeSettings are applied to the output stream only. A job copies them when it is
// built, so later changes never reach a running encode.
type EncodeSettings struct {
	Width        int    `yaml:"width" toml:"width" json:"width"`
	Height       int    `yaml:"height" toml:"height" json:"height"`
	FrameRate    int    `yaml:"frame_rate" toml:"frame_rate" json:"frame_rate"`
	VideoCodec   string `yaml:"video_codec" toml:"video_codec" json:"video_codec"`
	AudioCodec   string `yaml:"audio_codec" toml:"audio_codec" json:"audio_codec"`
	AudioBitrate string `yaml:"audio_bitrate" toml:"audio_bitrate" json:"audio_bitrate"`
	Quality      string `yaml:"quality" toml:"quality" json:"quality"`
	Container    string `yaml:"container" toml:"container" json:"container"`
}

type Encoder struct {
	FFmpegPath  string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" toml:"ffprobe_path"`
}

type Paths struct {
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
	TempDir   string `yaml:"temp_dir" toml:"temp_dir"`
}

type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type NATS struct {
	URL           string `yaml:"url" toml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix"`
}

type Config struct {
	Encode    EncodeSettings `yaml:"encode" toml:"encode"`
	Encoder   Encoder        `yaml:"encoder" toml:"encoder"`
	Paths     Paths          `yaml:"paths" toml:"paths"`
	Logging   Logging        `yaml:"logging" toml:"logging"`
	NATS      NATS           `yaml:"nats" toml:"nats"`
	ShowStats bool           `yaml:"show_stats" toml:"show_stats"`

	BuildVersion string `yaml:"-" toml:"-"`
}

// DefaultEncodeSettings mirrors the export panel defaults of the desktop app.
func DefaultEncodeSettings() EncodeSettings {
	return EncodeSettings{
		Width:        1920,
		Height:       1080,
		FrameRate:    30,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		AudioBitrate: "128k",
		Quality:      QualityHigh,
		Container:    ContainerMP4,
	}
}

func Default() Config {
	return Config{
		Encode: DefaultEncodeSettings(),
		Encoder: Encoder{
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Paths: Paths{
			OutputDir: "output",
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		NATS: NATS{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "scriptvideo",
		},
	}
}

// Load reads a YAML or TOML file (chosen by extension) on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Normalize()
	if err := cfg.Encode.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Encode.Normalize()
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Encoder.FFmpegPath == "" {
		c.Encoder.FFmpegPath = "ffmpeg"
	}
	if c.Encoder.FFprobePath == "" {
		c.Encoder.FFprobePath = "ffprobe"
	}
}

// Normalize lowercases identifiers and fills empty fields from the defaults.
func (s *EncodeSettings) Normalize() {
	def := DefaultEncodeSettings()
	s.VideoCodec = strings.TrimSpace(s.VideoCodec)
	s.AudioCodec = strings.TrimSpace(s.AudioCodec)
	s.AudioBitrate = strings.TrimSpace(s.AudioBitrate)
	s.Quality = strings.ToLower(strings.TrimSpace(s.Quality))
	s.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s.Container), "."))
	if s.Width == 0 && s.Height == 0 {
		s.Width, s.Height = def.Width, def.Height
	}
	if s.FrameRate == 0 {
		s.FrameRate = def.FrameRate
	}
	if s.VideoCodec == "" {
		s.VideoCodec = def.VideoCodec
	}
	if s.AudioCodec == "" {
		s.AudioCodec = def.AudioCodec
	}
	if s.AudioBitrate == "" {
		s.AudioBitrate = def.AudioBitrate
	}
	if s.Quality == "" {
		s.Quality = def.Quality
	}
	if s.Container == "" {
		s.Container = def.Container
	}
}

func (s EncodeSettings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d must be positive", ErrInvalidSettings, s.Width, s.Height)
	}
	// yuv420p needs even dimensions
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("%w: resolution %dx%d must be even", ErrInvalidSettings, s.Width, s.Height)
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate %d must be positive", ErrInvalidSettings, s.FrameRate)
	}
	if s.VideoCodec == "" || s.AudioCodec == "" {
		return fmt.Errorf("%w: video and audio codecs are required", ErrInvalidSettings)
	}
	switch s.Quality {
	case QualityHigh, QualityMedium, QualityLow:
	default:
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidSettings, s.Quality)
	}
	switch s.Container {
	case ContainerMP4, ContainerMOV, ContainerAVI:
	default:
		return fmt.Errorf("%w: unknown container %q", ErrInvalidSettings, s.Container)
	}
	return nil
}

// CRF maps the quality preset onto an x264 constant rate factor.
func (s EncodeSettings) CRF() int {
	switch s.Quality {
	case QualityLow:
		return 28
	case QualityMedium:
		return 23
	default:
		return 18
	}
}

// ParseResolution accepts "1920x1080" style values.
func ParseResolution(value string) (int, int, error) {
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(value)), "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("%w: resolution %q: want WIDTHxHEIGHT", ErrInvalidSettings, value)
	}
	return w, h, nil
}
