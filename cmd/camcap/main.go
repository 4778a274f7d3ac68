// Program camcap takes still pictures with a UVC webcam.
//
// Example:
//
//	camcap -d /dev/video0 -x 1280 -y 720 -j 10 -o /tmp/porch
//
// Settings can also come from a YAML file given with -config; flags given
// on the command line win over the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/adamlouis/camcap"
	"github.com/adamlouis/camcap/config"
	"github.com/adamlouis/camcap/snapshot"
	"github.com/golang/glog"
)

const version = "0.4.0"

const (
	exitOK       = 0
	exitFatal    = 1
	exitUsage    = 8
	exitBadValue = -1
)

// controlFlags collects repeated -set name=value overrides.
type controlFlags map[string]int32

func (c controlFlags) String() string {
	var parts []string
	for k, v := range c {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (c controlFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("%q: want name=value", s)
	}
	v, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return fmt.Errorf("%q: %w", s, err)
	}
	c[name] = int32(v)
	return nil
}

// shortControls are the controls with their own flag. Zero leaves the
// camera setting alone.
var shortControls = []struct {
	flag string
	name string
}{
	{"B", "Brightness"},
	{"C", "Contrast"},
	{"S", "Saturation"},
	{"G", "Gain"},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defer glog.Flush()

	fs := flag.NewFlagSet("camcap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	// glog registers on the default set.
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		fs.Var(f.Value, f.Name, f.Usage)
	})
	fs.Set("logtostderr", "true")

	def := config.Default()
	configPath := fs.String("config", "", "YAML settings file")
	prefix := fs.String("o", def.Prefix, "Output filename prefix")
	device := fs.String("d", def.Device, "V4L2 device")
	width := fs.Int("x", def.Width, "Image width")
	height := fs.Int("y", def.Height, "Image height")
	skip := fs.Int("j", def.Skip, "Skip <integer> frames before the first shot")
	delay := fs.Int("t", def.Delay, "Take a shot every <integer> microseconds, 0 for a single shot")
	speed := fs.Bool("T", false, "Report the time taken by each frame")
	count := fs.Int("n", def.Count, "Take <integer> shots then exit; with a delay shots are taken at that interval, otherwise back to back")
	quality := fs.Int("q", def.Quality, "JPEG quality 0-100; above 95 captures YUYV")
	useRead := fs.Bool("r", false, "Use read() instead of mmap for capture")
	useYUYV := fs.Bool("m", false, "Capture YUYV instead of MJPEG")
	query := fs.Bool("Q", false, "Print device formats and control ranges, then exit")
	output := fs.Int("f", def.Output, "Output format code: 0 JPEG, 1 YUYV, 2 BMP (with -codes bmp-first: 1 BMP, 2 YUYV)")
	codes := fs.String("codes", def.Codes, "Output code table: yuyv-first or bmp-first")
	naming := fs.String("naming", def.Naming, "File naming: auto, fixed, sequence or timestamp")
	settle := fs.Duration("settle", def.Settle, "Time the camera needs after a control write")
	buffers := fs.Int("buffers", def.Buffers, "Number of capture buffers")
	overrides := controlFlags{}
	fs.Var(overrides, "set", "Set a camera control, name=value (repeatable)")
	short := map[string]*int{}
	for _, c := range shortControls {
		short[c.flag] = fs.Int(c.flag, 0, c.name)
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "camcap version %s\nUsage is: camcap [options]\nOptions:\n", version)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "Unknown option %s\n", fs.Arg(0))
		fs.Usage()
		return exitUsage
	}
	if *skip < 0 {
		fmt.Fprintf(stderr, "Unsupported skip value: %d\n", *skip)
		return exitBadValue
	}
	if *delay < 0 {
		fmt.Fprintf(stderr, "Unsupported delay value: %d\n", *delay)
		return exitBadValue
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			glog.Error(err)
			return exitFatal
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.Prefix = *prefix
		case "d":
			cfg.Device = *device
		case "x":
			cfg.Width = *width
		case "y":
			cfg.Height = *height
		case "j":
			cfg.Skip = *skip
		case "t":
			cfg.Delay = *delay
		case "T":
			cfg.SpeedTest = *speed
		case "n":
			cfg.Count = *count
		case "q":
			cfg.Quality = *quality
		case "r":
			if *useRead {
				cfg.GrabMethod = "read"
			}
		case "m":
			if *useYUYV {
				cfg.Format = "YUYV"
			}
		case "Q":
			cfg.Query = *query
		case "f":
			cfg.Output = *output
		case "codes":
			cfg.Codes = *codes
		case "naming":
			cfg.Naming = *naming
		case "settle":
			cfg.Settle = *settle
		case "buffers":
			cfg.Buffers = *buffers
		}
	})
	for _, c := range shortControls {
		if v := *short[c.flag]; v != 0 {
			cfg.Controls[c.name] = int32(v)
		}
	}
	for name, v := range overrides {
		cfg.Controls[name] = v
	}

	if _, err := cfg.OutputFormat(); err != nil {
		fmt.Fprintln(stderr, "Unrecognized output format!")
		return exitFatal
	}
	sessionCfg, err := cfg.Session()
	if err != nil {
		glog.Error(err)
		return exitFatal
	}
	opts, err := cfg.Snapshot()
	if err != nil {
		glog.Error(err)
		return exitFatal
	}
	logSettings(cfg)

	s, err := camcap.Open(sessionCfg)
	if err != nil {
		glog.Error(err)
		return exitFatal
	}
	defer func() {
		if err := s.Close(); err != nil {
			glog.Warning(err)
		}
	}()
	ctl := s.Controls()
	ctl.Settle = cfg.Settle

	if cfg.Query {
		printQuery(stdout, s, cfg)
		return exitOK
	}
	applyControls(ctl, cfg.Controls)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	opts.Controls = ctl
	files, err := snapshot.NewSnapper(s, opts).Run(ctx)
	if ctx.Err() != nil {
		glog.Info("Exiting...")
	}
	if err != nil {
		glog.Errorf("Error grabbing: %v", err)
		return exitFatal
	}
	glog.V(1).Infof("%d images saved", len(files))
	return exitOK
}

func logSettings(cfg *config.Config) {
	if !glog.V(1) {
		return
	}
	glog.Infof("Using videodevice: %s", cfg.Device)
	glog.Infof("Saving images with prefix: %s", cfg.Prefix)
	glog.Infof("Image size: %dx%d", cfg.Width, cfg.Height)
	if cfg.Delay > 0 {
		glog.Infof("Taking snapshot every %v", time.Duration(cfg.Delay)*time.Microsecond)
	} else {
		glog.Info("Taking single snapshot")
	}
	glog.Infof("Taking images using %s", cfg.GrabMethod)
}

// applyControls resets each overridden control to its default and then
// writes the requested value. A control the camera lacks is reported and
// skipped.
func applyControls(ctl *camcap.ControlPort, overrides map[string]int32) {
	for _, k := range camcap.KnownControls {
		v, ok := lookupOverride(overrides, k.Name)
		if !ok {
			if glog.V(1) {
				if cur, err := ctl.Get(k.ID); err == nil {
					glog.Infof("Camera %s level is %d", k.Name, cur)
				}
			}
			continue
		}
		if err := ctl.Reset(k.ID); err != nil {
			glog.Warningf("%s: %v", k.Name, err)
			continue
		}
		glog.V(1).Infof("Setting camera %s to %d", k.Name, v)
		if err := ctl.Set(k.ID, v); err != nil {
			glog.Warningf("%s: %v", k.Name, err)
		}
	}
}

func lookupOverride(overrides map[string]int32, name string) (int32, bool) {
	for k, v := range overrides {
		if c, ok := camcap.LookupControl(k); ok && c.Name == name {
			return v, true
		}
	}
	return 0, false
}

func printQuery(w io.Writer, s *camcap.Session, cfg *config.Config) {
	caps := s.Capabilities()
	fmt.Fprintf(w, "Using videodevice: %s (%s, %s)\n", s.Device(), caps.Card, caps.Driver)
	fmt.Fprintf(w, "Saving images with prefix: %s\n", cfg.Prefix)
	fmt.Fprintf(w, "Image size: %dx%d\n", s.Width(), s.Height())
	fmt.Fprintf(w, "Taking images using %s\n", s.GrabMethod())

	formats := snapshot.Query(s)
	for _, f := range snapshot.SortedKeys(formats) {
		fmt.Fprintf(w, "%s: %s\n", f, strings.Join(formats[f], " "))
	}
	for _, c := range snapshot.QueryControls(s.Controls()) {
		fmt.Fprintf(w, "%s:\n\tValue: %d\n\tDefault: %d\n\tMax: %d\n\tMin: %d\n", c.Name, c.Value, c.Default, c.Maximum, c.Minimum)
	}
}
