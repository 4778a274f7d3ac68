// Package snapshot runs the still capture loop: it pulls frames from a
// session, drops the warm-up frames, and writes a file per shot.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/adamlouis/camcap"
	"github.com/adamlouis/camcap/frame"
	"github.com/golang/glog"
)

// Source yields captured frames. *camcap.Session satisfies it.
type Source interface {
	CaptureFrame() (camcap.Frame, error)
}

type Options struct {
	// Skip frames are dropped before the first shot so auto exposure can
	// settle.
	Skip int

	// Delay is the minimum time between shots. Zero takes shots back to
	// back.
	Delay time.Duration

	// Count is the number of shots. With Count <= 0 a single shot is taken
	// when Delay is zero, and shots continue until cancelled otherwise.
	Count int

	Output camcap.OutputFormat

	// Quality is the JPEG quality, 0-100, for frames compressed here. It
	// is used as given.
	Quality int

	SpeedTest bool
	Namer     *Namer

	// Controls, when set, has every known control logged before each
	// grab at verbosity 3.
	Controls *camcap.ControlPort
}

type Snapper struct {
	src  Source
	opts Options

	now    func() time.Time
	create func(name string) (io.WriteCloser, error)
}

// NewSnapper creates a new Snapper.
func NewSnapper(src Source, opts Options) *Snapper {
	if opts.Namer == nil {
		opts.Namer = NewNamer(NamingAuto, "cam_cap_snap", opts.Delay > 0)
	}
	return &Snapper{
		src:  src,
		opts: opts,
		now:  time.Now,
		create: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}
}

// Run captures until the shot count is reached, ctx is cancelled, or the
// source fails. It returns the names of the files written. Cancellation is
// checked between frames and is not an error.
func (c *Snapper) Run(ctx context.Context) ([]string, error) {
	var files []string
	skip := c.opts.Skip
	last := c.now()
	for grabs := 0; ; grabs++ {
		if ctx.Err() != nil {
			glog.V(1).Infof("capture stopped after %d shots", len(files))
			return files, nil
		}
		if glog.V(3) {
			c.logControls()
		}
		glog.V(2).Info("grabbing frame")

		start := c.now()
		f, err := c.src.CaptureFrame()
		if err != nil {
			return files, err
		}
		if f.Skipped {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}

		if c.now().Sub(last) >= c.opts.Delay {
			name, err := c.save(f, len(files))
			if err != nil {
				return files, err
			}
			files = append(files, name)
			last = c.now()
		}
		if c.opts.SpeedTest {
			glog.Infof("Frame %d time consume: %dus", grabs, c.now().Sub(start).Microseconds())
		}
		if c.done(len(files)) {
			return files, nil
		}
	}
}

func (c *Snapper) done(shots int) bool {
	if c.opts.Count > 0 {
		return shots >= c.opts.Count
	}
	return c.opts.Delay == 0 && shots > 0
}

func (c *Snapper) save(f camcap.Frame, seq int) (string, error) {
	name := c.opts.Namer.Name(seq, Extension(c.opts.Output))
	glog.V(1).Infof("Saving image to: %s", name)
	w, err := c.create(name)
	if err != nil {
		return "", err
	}
	if err := c.write(w, f); err != nil {
		w.Close()
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return name, nil
}

func (c *Snapper) write(w io.Writer, f camcap.Frame) error {
	switch c.opts.Output {
	case camcap.OutputJPEG:
		if f.Format == camcap.PixelFormatMJPEG {
			return frame.WriteJPEG(w, f.Data)
		}
		glog.V(2).Info("Compressing YUYV frame to JPEG image.")
		return frame.EncodeJPEG(w, f.Data, f.Width, f.Height, c.opts.Quality)
	case camcap.OutputYUYV:
		if f.Format != camcap.PixelFormatYUYV {
			return fmt.Errorf("cannot write %s frame as YUYV", f.Format)
		}
		_, err := w.Write(f.Data)
		return err
	case camcap.OutputBMP:
		if f.Format != camcap.PixelFormatYUYV {
			return fmt.Errorf("cannot write %s frame as BMP", f.Format)
		}
		return frame.EncodeBMP(w, f.Data, f.Width, f.Height)
	}
	return fmt.Errorf("unrecognized output format %s", c.opts.Output)
}

func (c *Snapper) logControls() {
	if c.opts.Controls == nil {
		return
	}
	for _, k := range camcap.KnownControls {
		if v, err := c.opts.Controls.Get(k.ID); err == nil {
			glog.Infof("%s: %d", k.Name, v)
		} else {
			glog.Infof("%s: Failed!", k.Name)
		}
	}
}
