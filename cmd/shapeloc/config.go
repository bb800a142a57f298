package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/esimov/shapeloc/geom"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"
)

// config holds the command line options. The values read from the YAML file
// given by -config act as defaults for the flags not set explicitly.
type config struct {
	Source      string  `yaml:"in"`
	Destination string  `yaml:"out"`
	Model       string  `yaml:"model"`
	Convert     string  `yaml:"convert"`
	Compress    string  `yaml:"compress"`
	Rect        string  `yaml:"rect"`
	Format      string  `yaml:"format"`
	FaceDetect  bool    `yaml:"face"`
	Cascade     string  `yaml:"cc"`
	FaceAngle   float64 `yaml:"angle"`
	Workers     int     `yaml:"conc"`
	PointColor  string  `yaml:"point_color"`
	LineColor   string  `yaml:"line_color"`
	Op          string  `yaml:"op"`
	Blend       string  `yaml:"blend"`
	LogLevel    string  `yaml:"log_level"`
	LogFile     string  `yaml:"log_file"`

	configFile string
}

func defaultConfig() *config {
	return &config{
		Source:      pipeName,
		Destination: pipeName,
		Compress:    "zstd",
		Workers:     runtime.NumCPU(),
		PointColor:  "#ff3333",
		LineColor:   "#33ccffc0",
		LogLevel:    "warn",
	}
}

func (c *config) flagSet(output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("shapeloc", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&c.Source, "in", c.Source, "Source image, directory or URL")
	fs.StringVar(&c.Destination, "out", c.Destination, "Destination image, JSON file or directory")
	fs.StringVar(&c.Model, "model", c.Model, "Shape predictor model (dlib or cache format)")
	fs.StringVar(&c.Convert, "convert", c.Convert, "Convert the dlib model into a cache file and exit")
	fs.StringVar(&c.Compress, "compress", c.Compress, "Cache compression (none, lz4, zstd)")
	fs.StringVar(&c.Rect, "rect", c.Rect, "Face region as x,y,width,height")
	fs.StringVar(&c.Format, "format", c.Format, "Output format (image, json)")
	fs.BoolVar(&c.FaceDetect, "face", c.FaceDetect, "Use face detection")
	fs.StringVar(&c.Cascade, "cc", c.Cascade, "Face detector cascade file")
	fs.Float64Var(&c.FaceAngle, "angle", c.FaceAngle, "Plane rotated faces angle")
	fs.IntVar(&c.Workers, "conc", c.Workers, "Number of files to process concurrently")
	fs.StringVar(&c.PointColor, "point-color", c.PointColor, "Landmark color")
	fs.StringVar(&c.LineColor, "line-color", c.LineColor, "Face contour color")
	fs.StringVar(&c.Op, "op", c.Op, "Composition operator of the annotations (src_over, dst_over, src_atop, xor, ...)")
	fs.StringVar(&c.Blend, "blend", c.Blend, "Blend mode of the annotations (normal, darken, lighten, multiply, screen, overlay)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Write the logs into a rotated file")
	fs.StringVar(&c.configFile, "config", c.configFile, "YAML configuration file")
	return fs
}

// parseConfig parses the command line arguments. When a configuration file
// is given the flags are parsed a second time on top of its values.
func parseConfig(args []string, output io.Writer, usage func(*flag.FlagSet)) (*config, error) {
	cfg := defaultConfig()
	fs := cfg.flagSet(output)
	if usage != nil {
		fs.Usage = func() { usage(fs) }
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.configFile == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read the configuration file: %w", err)
	}
	fileCfg := defaultConfig()
	if err := yaml.UnmarshalStrict(data, fileCfg); err != nil {
		return nil, fmt.Errorf("invalid configuration file %s: %w", cfg.configFile, err)
	}
	if err := fileCfg.flagSet(io.Discard).Parse(args); err != nil {
		return nil, err
	}
	return fileCfg, nil
}

// parseRect parses a region given as x,y,width,height.
func parseRect(s string) (*geom.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid region %q: expected x,y,width,height", s)
	}
	var v [4]float32
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid region %q: %w", s, err)
		}
		v[i] = float32(f)
	}
	r := geom.NewRectangle(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return nil, fmt.Errorf("invalid region %q: empty rectangle", s)
	}
	return &r, nil
}

// newLogger builds a console logger writing into w and, when a log file is
// given, a JSON logger writing into a size rotated file.
func newLogger(level, file string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl),
	}
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			lvl,
		))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
