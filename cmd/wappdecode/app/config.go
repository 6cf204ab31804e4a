package app

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/roman-kulish/wapp-stream/internal/lags"
	"github.com/roman-kulish/wapp-stream/internal/stream"
	"gopkg.in/yaml.v3"
)

const (
	defaultBlocksPerSpectrum = 16
	defaultBlocksPerRead     = 16
	defaultDatabase          = "catalogue.sqlite"
)

// Config represents the main application configuration
type Config struct {
	Settings   Settings          `yaml:"settings"`
	Input      InputConfig       `yaml:"input"`
	Output     OutputConfig      `yaml:"output"`
	Storage    StorageConfig     `yaml:"storage"`
	Dedisperse *DedisperseConfig `yaml:"dedisperse"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel         string   `yaml:"logLevel"`
	ProgressInterval Duration `yaml:"progressInterval"` // Zero disables progress logging
}

// InputConfig describes the raw files of one stream
type InputConfig struct {
	Files          []string  `yaml:"files"` // In stream order
	PointsPerBlock int       `yaml:"pointsPerBlock"`
	MaxFiles       int       `yaml:"maxFiles"`
	ByteOrder      ByteOrder `yaml:"byteOrder"`
	StartBlock     int64     `yaml:"startBlock"` // 0-based aggregate block to start decoding at
	ScaleMin       *float64  `yaml:"scaleMin"`
	ScaleMax       *float64  `yaml:"scaleMax"`
}

// OutputConfig represents the decoded byte stream output
type OutputConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
	Level    string `yaml:"level"` // zstd level: fastest, default, better or best
}

// StorageConfig represents catalogue settings
type StorageConfig struct {
	DataDirectory     string `yaml:"dataDirectory"`
	Database          string `yaml:"database"`
	BlocksPerSpectrum int    `yaml:"blocksPerSpectrum"`
}

// DedisperseConfig enables a dedispersed time series output
type DedisperseConfig struct {
	Output        string     `yaml:"output"`
	DM            float64    `yaml:"dm"` // pc/cm^3
	BlocksPerRead int        `yaml:"blocksPerRead"`
	Subbands      int        `yaml:"subbands"` // Zero sums all channels
	Transpose     bool       `yaml:"transpose"`
	Mask          MaskConfig `yaml:"mask"`
}

// MaskConfig lists channels blanked everywhere and intervals, in seconds from
// the start of the stream, blanked entirely
type MaskConfig struct {
	Channels  []int             `yaml:"channels"`
	Intervals []stream.Interval `yaml:"intervals"`
}

// MetricsConfig represents the prometheus endpoint
type MetricsConfig struct {
	Listen string `yaml:"listen"` // Empty disables the endpoint
}

// LoadConfig reads and validates a YAML configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration, applies defaults and validates it
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = "info"
	}
	if c.Input.PointsPerBlock == 0 {
		c.Input.PointsPerBlock = stream.DefaultPointsPerBlock
	}
	if c.Input.MaxFiles == 0 {
		c.Input.MaxFiles = stream.DefaultMaxFiles
	}
	if c.Output.Level == "" {
		c.Output.Level = "default"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = defaultDatabase
	}
	if c.Storage.BlocksPerSpectrum == 0 {
		c.Storage.BlocksPerSpectrum = defaultBlocksPerSpectrum
	}
	if c.Dedisperse != nil && c.Dedisperse.BlocksPerRead == 0 {
		c.Dedisperse.BlocksPerRead = defaultBlocksPerRead
	}
}

// Validate checks the configuration for values the decoder cannot work with
func (c *Config) Validate() error {
	if _, err := c.Settings.Level(); err != nil {
		return err
	}
	if err := c.Settings.ProgressInterval.Validate(); err != nil {
		return err
	}

	if len(c.Input.Files) == 0 {
		return errors.New("input.files: at least one raw file is required")
	}
	if len(c.Input.Files) > c.Input.MaxFiles {
		return fmt.Errorf("input.files: %d files, at most %d allowed", len(c.Input.Files), c.Input.MaxFiles)
	}
	if c.Input.PointsPerBlock < 1 {
		return fmt.Errorf("input.pointsPerBlock: must be positive, got %d", c.Input.PointsPerBlock)
	}
	if c.Input.StartBlock < 0 {
		return fmt.Errorf("input.startBlock: must not be negative, got %d", c.Input.StartBlock)
	}
	lo, hi := c.Input.Scale()
	if hi <= lo {
		return fmt.Errorf("input.scaleMax: %g must be above scaleMin %g", hi, lo)
	}

	if ok, _ := zstd.EncoderLevelFromString(c.Output.Level); !ok {
		return fmt.Errorf("output.level: unknown compression level '%s'", c.Output.Level)
	}

	if c.Storage.BlocksPerSpectrum < 1 {
		return fmt.Errorf("storage.blocksPerSpectrum: must be positive, got %d", c.Storage.BlocksPerSpectrum)
	}

	if d := c.Dedisperse; d != nil {
		if d.Output == "" {
			return errors.New("dedisperse.output: path is required")
		}
		if d.DM < 0 {
			return fmt.Errorf("dedisperse.dm: must not be negative, got %g", d.DM)
		}
		if d.BlocksPerRead < 1 {
			return fmt.Errorf("dedisperse.blocksPerRead: must be positive, got %d", d.BlocksPerRead)
		}
		if d.Subbands < 0 {
			return fmt.Errorf("dedisperse.subbands: must not be negative, got %d", d.Subbands)
		}
		for _, iv := range d.Mask.Intervals {
			if iv.End <= iv.Start {
				return fmt.Errorf("dedisperse.mask: interval [%g, %g) is empty", iv.Start, iv.End)
			}
		}
	}

	return nil
}

// Level parses the configured log level
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("settings.logLevel: %w", err)
	}
	return level, nil
}

// Scale returns the power range the decoded bytes are quantized over
func (c InputConfig) Scale() (lo, hi float64) {
	lo, hi = lags.DefaultScaleMin, lags.DefaultScaleMax
	if c.ScaleMin != nil {
		lo = *c.ScaleMin
	}
	if c.ScaleMax != nil {
		hi = *c.ScaleMax
	}
	return lo, hi
}

// Options returns the stream options the input section describes
func (c InputConfig) Options(logger *slog.Logger) []stream.Option {
	lo, hi := c.Scale()
	opts := []stream.Option{
		stream.WithPointsPerBlock(c.PointsPerBlock),
		stream.WithMaxFiles(c.MaxFiles),
		stream.WithScale(lo, hi),
		stream.WithLogger(logger),
	}
	if order := c.ByteOrder.Order(); order != nil {
		opts = append(opts, stream.WithByteOrder(order))
	}
	return opts
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Validate() error {
	duration := time.Duration(d)

	if duration < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", duration)
	}
	if duration > 0 && duration < time.Second {
		return fmt.Errorf("app.Duration: must be at least 1 second: %s given", duration)
	}

	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// ByteOrder selects the byte order of the raw files. "auto" leaves detection
// to the header heuristic.
type ByteOrder string

const (
	ByteOrderAuto   ByteOrder = "auto"
	ByteOrderLittle ByteOrder = "little"
	ByteOrderBig    ByteOrder = "big"
)

func (b *ByteOrder) UnmarshalYAML(value *yaml.Node) error {
	switch v := ByteOrder(strings.ToLower(value.Value)); v {
	case "", ByteOrderAuto, ByteOrderLittle, ByteOrderBig:
		*b = v
		return nil
	default:
		return fmt.Errorf("app.ByteOrder: unknown byte order '%s'", value.Value)
	}
}

// Order returns the forced byte order, nil for detection
func (b ByteOrder) Order() binary.ByteOrder {
	switch b {
	case ByteOrderLittle:
		return binary.LittleEndian
	case ByteOrderBig:
		return binary.BigEndian
	default:
		return nil
	}
}
