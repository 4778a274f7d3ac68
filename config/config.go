// Package config holds the settings of a capture run: which device to open,
// how frames are negotiated and converted, and how often shots are taken.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adamlouis/camcap"
	"github.com/adamlouis/camcap/snapshot"
	"gopkg.in/yaml.v3"
)

// Output format code tables. Code 0 is always JPEG; the tables disagree on
// whether 1 means YUYV or BMP.
const (
	CodesYUYVFirst = "yuyv-first"
	CodesBMPFirst  = "bmp-first"
)

var codeTables = map[string][]camcap.OutputFormat{
	CodesYUYVFirst: {camcap.OutputJPEG, camcap.OutputYUYV, camcap.OutputBMP},
	CodesBMPFirst:  {camcap.OutputJPEG, camcap.OutputBMP, camcap.OutputYUYV},
}

// MaxMJPEGQuality is the highest quality MJPEG capture is used for. Above
// it frames are captured as YUYV and compressed here.
const MaxMJPEGQuality = 95

type Config struct {
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Format string `yaml:"format"` // capture pixel format, MJPEG or YUYV

	// Output is a code looked up in the Codes table.
	Output     int    `yaml:"output"`
	Codes      string `yaml:"codes"`
	GrabMethod string `yaml:"grab_method"` // mmap or read
	Buffers    int    `yaml:"buffers"`
	Quality    int    `yaml:"quality"`

	Skip   int    `yaml:"skip"`  // frames dropped before the first shot
	Delay  int    `yaml:"delay"` // microseconds between shots
	Count  int    `yaml:"count"` // shots to take, -1 for no limit
	Prefix string `yaml:"prefix"`
	Naming string `yaml:"naming"` // auto, fixed, sequence or timestamp

	Settle    time.Duration    `yaml:"settle"`
	Controls  map[string]int32 `yaml:"controls"`
	Query     bool             `yaml:"query"`
	SpeedTest bool             `yaml:"speed_test"`
}

func Default() *Config {
	return &Config{
		Device:     "/dev/video1",
		Width:      640,
		Height:     480,
		Format:     "MJPEG",
		Output:     0,
		Codes:      CodesYUYVFirst,
		GrabMethod: "mmap",
		Buffers:    camcap.DefaultBufferCount,
		Quality:    MaxMJPEGQuality,
		Count:      -1,
		Prefix:     "cam_cap_snap",
		Naming:     string(snapshot.NamingAuto),
		Settle:     camcap.DefaultSettleTime,
		Controls:   map[string]int32{},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Controls == nil {
		cfg.Controls = map[string]int32{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every setting. Errors match camcap.ErrConfigInvalid.
func (c *Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("no device"))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("illegal frame size %dx%d", c.Width, c.Height))
	}
	if _, err := c.PixelFormat(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := codeTables[c.Codes]; !ok {
		errs = append(errs, fmt.Errorf("unknown code table %q", c.Codes))
	} else if _, err := c.OutputFormat(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Grab(); err != nil {
		errs = append(errs, err)
	}
	if c.Buffers < 0 {
		errs = append(errs, fmt.Errorf("negative buffer count %d", c.Buffers))
	}
	if c.Quality < 0 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality %d outside 0-100", c.Quality))
	}
	if c.Skip < 0 {
		errs = append(errs, fmt.Errorf("unsupported skip value %d", c.Skip))
	}
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("unsupported delay value %d", c.Delay))
	}
	if _, err := snapshot.ParseNaming(c.Naming); err != nil {
		errs = append(errs, err)
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("empty file prefix"))
	}
	if c.Settle < 0 {
		errs = append(errs, fmt.Errorf("negative settle time %v", c.Settle))
	}
	for name := range c.Controls {
		if _, ok := camcap.LookupControl(name); !ok {
			errs = append(errs, fmt.Errorf("unknown control %q", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", camcap.ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// PixelFormat returns the configured capture format.
func (c *Config) PixelFormat() (camcap.PixelFormat, error) {
	pf, err := camcap.ParsePixelFormat(c.Format)
	if err != nil {
		return 0, err
	}
	if pf != camcap.PixelFormatYUYV && pf != camcap.PixelFormatMJPEG {
		return 0, fmt.Errorf("capture format %s not supported", pf)
	}
	return pf, nil
}

// EffectiveInputFormat returns the format frames are captured in. A quality
// above MaxMJPEGQuality forces YUYV capture.
func (c *Config) EffectiveInputFormat() (camcap.PixelFormat, error) {
	if c.Quality > MaxMJPEGQuality {
		return camcap.PixelFormatYUYV, nil
	}
	return c.PixelFormat()
}

// OutputFormat resolves the output code through the configured table.
func (c *Config) OutputFormat() (camcap.OutputFormat, error) {
	table, ok := codeTables[c.Codes]
	if !ok {
		return 0, fmt.Errorf("unknown code table %q", c.Codes)
	}
	if c.Output < 0 || c.Output >= len(table) {
		return 0, fmt.Errorf("unrecognized output format %d", c.Output)
	}
	return table[c.Output], nil
}

func (c *Config) Grab() (camcap.GrabMethod, error) {
	switch strings.ToLower(c.GrabMethod) {
	case "mmap", "":
		return camcap.GrabMmap, nil
	case "read":
		return camcap.GrabRead, nil
	}
	return 0, fmt.Errorf("unknown grab method %q", c.GrabMethod)
}

// Session returns the settings a capture session is opened with.
func (c *Config) Session() (camcap.Config, error) {
	if err := c.Validate(); err != nil {
		return camcap.Config{}, err
	}
	in, _ := c.EffectiveInputFormat()
	out, _ := c.OutputFormat()
	grab, _ := c.Grab()
	return camcap.Config{
		Device:       c.Device,
		Width:        c.Width,
		Height:       c.Height,
		InputFormat:  in,
		OutputFormat: out,
		GrabMethod:   grab,
		BufferCount:  c.Buffers,
	}, nil
}

// Snapshot returns the capture loop options. Delay is read as
// microseconds.
func (c *Config) Snapshot() (snapshot.Options, error) {
	if err := c.Validate(); err != nil {
		return snapshot.Options{}, err
	}
	out, _ := c.OutputFormat()
	naming, _ := snapshot.ParseNaming(c.Naming)
	delay := time.Duration(c.Delay) * time.Microsecond
	return snapshot.Options{
		Skip:      c.Skip,
		Delay:     delay,
		Count:     c.Count,
		Output:    out,
		Quality:   c.Quality,
		SpeedTest: c.SpeedTest,
		Namer:     snapshot.NewNamer(naming, c.Prefix, delay > 0),
	}, nil
}
