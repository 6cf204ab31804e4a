package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	TimeZone      *time.Location
	MinPower      *float64
	MaxPower      *float64
	MinFrequency  *float64 // MHz
	MaxFrequency  *float64 // MHz
	FirstBlock    *int64
	LastBlock     *int64
	MinWidth      int // Minimum width of the waterfall in pixels
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    DefaultTheme,
		TimeZone: time.UTC,
		MinWidth: defaultMinWidth,
	}
}

// NewConfigFromArgs parses command line arguments, without the program name
func NewConfigFromArgs(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("wappview", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, timeZone string
	var minPower, maxPower, minFreq, maxFreq float64
	var firstBlock, lastBlock int64
	fs.StringVar(&c.DBPath, "db", "", "Path to the catalogue database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(DefaultTheme), "Color theme. [default, classic, grayscale, thermal, marine]")
	fs.StringVar(&timeZone, "tz", "UTC", "Time zone of the time scale, e.g. America/Puerto_Rico")
	fs.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power")
	fs.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power")
	fs.Float64Var(&minFreq, "min-freq", 0, "Lowest channel frequency to render in MHz")
	fs.Float64Var(&maxFreq, "max-freq", 0, "Highest channel frequency to render in MHz")
	fs.Int64Var(&firstBlock, "first-block", 0, "First block to render")
	fs.Int64Var(&lastBlock, "last-block", 0, "Last block to render")
	fs.IntVar(&c.MinWidth, "min-width", defaultMinWidth, "Minimum waterfall width in pixels, channels are widened to fit")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and frequency scales")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-power":
			c.MinPower = &minPower
		case "max-power":
			c.MaxPower = &maxPower
		case "min-freq":
			c.MinFrequency = &minFreq
		case "max-freq":
			c.MaxFrequency = &maxFreq
		case "first-block":
			c.FirstBlock = &firstBlock
		case "last-block":
			c.LastBlock = &lastBlock
		}
	})

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.Theme, err = ParseColorTheme(theme); err != nil {
		err = fmt.Errorf("invalid color theme: %w", err)
	} else if c.TimeZone, err = time.LoadLocation(timeZone); err != nil {
		err = fmt.Errorf("invalid time zone: %w", err)
	} else if c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower {
		err = errors.New("min power must be below max power")
	} else if c.MinWidth < 1 {
		err = errors.New("min width must be positive")
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
