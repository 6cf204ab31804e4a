package app

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/wapp-stream/internal/stream"
	"gopkg.in/yaml.v3"
)

const minimalConfig = `
input:
  files: [a.wapp]
`

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if config.Settings.LogLevel != "info" {
		t.Errorf("Expected log level info, got %s", config.Settings.LogLevel)
	}
	if config.Input.PointsPerBlock != stream.DefaultPointsPerBlock {
		t.Errorf("Expected %d points per block, got %d", stream.DefaultPointsPerBlock, config.Input.PointsPerBlock)
	}
	if config.Input.MaxFiles != stream.DefaultMaxFiles {
		t.Errorf("Expected %d max files, got %d", stream.DefaultMaxFiles, config.Input.MaxFiles)
	}
	if config.Storage.BlocksPerSpectrum != defaultBlocksPerSpectrum {
		t.Errorf("Expected %d blocks per spectrum, got %d", defaultBlocksPerSpectrum, config.Storage.BlocksPerSpectrum)
	}
	if config.Storage.Database != defaultDatabase {
		t.Errorf("Expected database %s, got %s", defaultDatabase, config.Storage.Database)
	}
	if config.Dedisperse != nil {
		t.Error("Expected no dedispersion by default")
	}

	lo, hi := config.Input.Scale()
	if lo != 0 || hi != 3 {
		t.Errorf("Expected scale [0, 3], got [%g, %g]", lo, hi)
	}
	if order := config.Input.ByteOrder.Order(); order != nil {
		t.Errorf("Expected byte order detection, got %s", order)
	}
}

func TestParseConfig_Full(t *testing.T) {
	data := `
settings:
  logLevel: debug
  progressInterval: 30s
input:
  files: [a.wapp, b.wapp]
  pointsPerBlock: 32
  byteOrder: BIG
  startBlock: 10
  scaleMin: -1
  scaleMax: 4
output:
  path: out.fil
  compress: true
  level: best
storage:
  blocksPerSpectrum: 8
dedisperse:
  output: out.f32
  dm: 56.8
  subbands: 4
  transpose: true
  mask:
    channels: [1, 2]
    intervals:
      - start: 1.5
        end: 2
metrics:
  listen: ":9110"
`
	config, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	level, err := config.Settings.Level()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v (%v)", level, err)
	}
	if time.Duration(config.Settings.ProgressInterval) != 30*time.Second {
		t.Errorf("Expected progress interval 30s, got %s", config.Settings.ProgressInterval)
	}
	if config.Input.ByteOrder.Order() != binary.BigEndian {
		t.Errorf("Expected big endian, got %v", config.Input.ByteOrder.Order())
	}
	if lo, hi := config.Input.Scale(); lo != -1 || hi != 4 {
		t.Errorf("Expected scale [-1, 4], got [%g, %g]", lo, hi)
	}
	if len(config.Input.Options(discardLogger())) != 5 {
		t.Error("Expected a byte order option")
	}

	d := config.Dedisperse
	if d == nil {
		t.Fatal("Expected a dedisperse section")
	}
	if d.BlocksPerRead != defaultBlocksPerRead {
		t.Errorf("Expected %d blocks per read, got %d", defaultBlocksPerRead, d.BlocksPerRead)
	}
	if d.DM != 56.8 || d.Subbands != 4 || !d.Transpose {
		t.Errorf("Unexpected dedisperse section: %+v", d)
	}
	if len(d.Mask.Intervals) != 1 || d.Mask.Intervals[0] != (stream.Interval{Start: 1.5, End: 2}) {
		t.Errorf("Unexpected mask intervals: %+v", d.Mask.Intervals)
	}
	if config.Metrics.Listen != ":9110" {
		t.Errorf("Expected metrics on :9110, got %s", config.Metrics.Listen)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "no files", data: "input: {}", want: "input.files"},
		{name: "log level", data: minimalConfig + "settings: {logLevel: loud}", want: "settings.logLevel"},
		{name: "short interval", data: minimalConfig + "settings: {progressInterval: 10ms}", want: "at least 1 second"},
		{name: "bad duration", data: minimalConfig + "settings: {progressInterval: soon}", want: "failed to parse"},
		{name: "byte order", data: "input: {files: [a], byteOrder: middle}", want: "unknown byte order"},
		{name: "negative start", data: "input: {files: [a], startBlock: -1}", want: "input.startBlock"},
		{name: "scale", data: "input: {files: [a], scaleMin: 3, scaleMax: 1}", want: "input.scaleMax"},
		{name: "too many files", data: "input: {files: [a, b], maxFiles: 1}", want: "at most 1"},
		{name: "compression level", data: minimalConfig + "output: {level: extreme}", want: "output.level"},
		{name: "dedisperse output", data: minimalConfig + "dedisperse: {dm: 1}", want: "dedisperse.output"},
		{name: "negative dm", data: minimalConfig + "dedisperse: {output: x, dm: -1}", want: "dedisperse.dm"},
		{name: "empty interval", data: minimalConfig + "dedisperse: {output: x, mask: {intervals: [{start: 2, end: 1}]}}", want: "is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimalConfig), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(config.Input.Files) != 1 {
		t.Errorf("Expected 1 file, got %d", len(config.Input.Files))
	}

	if _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestDuration(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte("90s"), &d); err != nil {
		t.Fatalf("Failed to unmarshal duration: %v", err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("Expected 90s, got %s", d)
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("Failed to marshal duration: %v", err)
	}
	if strings.TrimSpace(string(out)) != "1m30s" {
		t.Errorf("Expected 1m30s, got %s", out)
	}

	if err = d.UnmarshalJSON([]byte(`"2m"`)); err != nil {
		t.Fatalf("Failed to unmarshal JSON duration: %v", err)
	}
	if time.Duration(d) != 2*time.Minute {
		t.Errorf("Expected 2m, got %s", d)
	}

	if err = Duration(-time.Second).Validate(); err == nil {
		t.Error("Expected an error for a negative duration")
	}
}

func TestSettings_Level(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", level: "debug", want: slog.LevelDebug},
		{name: "upper case", level: "WARN", want: slog.LevelWarn},
		{name: "offset", level: "info+2", want: slog.LevelInfo + 2},
		{name: "unknown", level: "loud", wantErr: true},
		{name: "empty", level: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Settings{LogLevel: tt.level}.Level()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected an error for level %q", tt.level)
				}
				if !strings.Contains(err.Error(), "settings.logLevel") {
					t.Errorf("Expected error naming settings.logLevel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to parse level: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
