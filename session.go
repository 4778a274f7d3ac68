// Package camcap captures still frames from USB UVC webcams through the
// V4L2 streaming interface.
//
// A Session owns the open device, the negotiated format and a fixed pool
// of memory mapped capture buffers. Each call to CaptureFrame takes one
// filled buffer from the driver, copies its contents into the session's
// scratch memory and hands the buffer straight back, so the application
// never holds more than one buffer at a time.
package camcap

import (
	"errors"
	"fmt"

	"github.com/adamlouis/camcap/frame"
	"github.com/golang/glog"
)

const (
	DefaultBufferCount = 4

	// MinFrameSize is the largest MJPEG payload that is treated as an
	// empty frame rather than image data.
	MinFrameSize = 0xaf
)

type GrabMethod int

const (
	GrabRead GrabMethod = iota
	GrabMmap
)

func (g GrabMethod) String() string {
	switch g {
	case GrabRead:
		return "read"
	case GrabMmap:
		return "mmap"
	}
	return fmt.Sprintf("GrabMethod(%d)", int(g))
}

// Config holds what a Session is opened with.
type Config struct {
	Device       string
	Width        int
	Height       int
	InputFormat  PixelFormat
	OutputFormat OutputFormat
	GrabMethod   GrabMethod
	// BufferCount is the size of the capture pool; 0 selects
	// DefaultBufferCount.
	BufferCount  int
}

// Frame is one captured image. Data points into session memory and is
// only valid until the next call to CaptureFrame or Close.
type Frame struct {
	Format    PixelFormat
	Width     int
	Height    int
	Data      []byte
	BytesUsed int
	// Skipped is set for an empty MJPEG frame. There is no image data and
	// the caller should capture again.
	Skipped   bool
}

type Session struct {
	drv    Driver
	device string
	caps   Capability

	width     int
	height    int
	inFormat  PixelFormat
	outFormat OutputFormat
	grab      GrabMethod

	slots     slotPool
	streaming bool
	failed    error
	closed    bool

	// compressed receives raw driver payloads; frameBuf holds the
	// YUYV frame, copied or decoded.
	compressed []byte
	frameBuf   []byte

	controls *ControlPort
}

// Open opens the V4L2 device named in cfg.
func Open(cfg Config) (*Session, error) {
	return OpenWith(cfg, OpenDevice)
}

// OpenWith validates cfg, opens the device through open, negotiates the
// format and sets up the capture buffers. On failure everything acquired
// so far has been released.
func OpenWith(cfg Config, open Opener) (*Session, error) {
	if cfg.Device == "" {
		return nil, newError(ErrConfigInvalid, cfg.Device, "open", errors.New("no device given"))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, newError(ErrConfigInvalid, cfg.Device, "open", fmt.Errorf("illegal frame size %dx%d", cfg.Width, cfg.Height))
	}
	if cfg.InputFormat != PixelFormatYUYV && cfg.InputFormat != PixelFormatMJPEG {
		return nil, newError(ErrConfigInvalid, cfg.Device, "open", fmt.Errorf("unsupported input format %s", cfg.InputFormat))
	}
	if cfg.GrabMethod != GrabRead && cfg.GrabMethod != GrabMmap {
		glog.Warningf("%s: unknown grab method %d, using mmap", cfg.Device, cfg.GrabMethod)
		cfg.GrabMethod = GrabMmap
	}
	if cfg.BufferCount <= 0 {
		cfg.BufferCount = DefaultBufferCount
	}

	drv, err := open(cfg.Device)
	if err != nil {
		return nil, newError(ErrDeviceIO, cfg.Device, "open", err)
	}
	s := &Session{
		drv:       drv,
		device:    cfg.Device,
		width:     cfg.Width,
		height:    cfg.Height,
		inFormat:  cfg.InputFormat,
		outFormat: cfg.OutputFormat,
		grab:      cfg.GrabMethod,
	}
	if err := s.init(cfg.BufferCount); err != nil {
		s.teardown()
		return nil, err
	}
	s.controls = NewControlPort(drv, s.device)
	return s, nil
}

func (s *Session) init(bufferCount int) error {
	caps, err := s.drv.QueryCapabilities()
	if err != nil {
		return newError(ErrDeviceUnsupported, s.device, "query capabilities", err)
	}
	s.caps = caps
	if !caps.Has(CapVideoCapture) {
		return newError(ErrDeviceUnsupported, s.device, "open", errors.New("video capture not supported"))
	}
	if s.grab == GrabMmap && !caps.Has(CapStreaming) {
		return newError(ErrDeviceUnsupported, s.device, "open", errors.New("streaming i/o not supported"))
	}
	if s.grab == GrabRead && !caps.Has(CapReadWrite) {
		return newError(ErrDeviceUnsupported, s.device, "open", errors.New("read i/o not supported"))
	}

	pix := PixFormat{Width: uint32(s.width), Height: uint32(s.height), PixelFormat: s.inFormat}
	if err := s.drv.SetFormat(&pix); err != nil {
		return newError(ErrDeviceUnsupported, s.device, "set format", err)
	}
	if int(pix.Width) != s.width || int(pix.Height) != s.height {
		glog.Warningf("%s: asked for %dx%d, got %dx%d", s.device, s.width, s.height, pix.Width, pix.Height)
		s.width = int(pix.Width)
		s.height = int(pix.Height)
	}
	if pix.PixelFormat != s.inFormat {
		glog.Warningf("%s: asked for format %s, driver answered %s; keeping %s", s.device, s.inFormat, pix.PixelFormat, s.inFormat)
	}
	if s.width <= 0 || s.height <= 0 {
		return newError(ErrDeviceUnsupported, s.device, "set format", fmt.Errorf("driver negotiated %dx%d", s.width, s.height))
	}

	if s.grab == GrabMmap {
		if err := s.allocBuffers(uint32(bufferCount)); err != nil {
			return err
		}
	}

	frameSize := s.width * s.height * 2
	compressedSize := frameSize
	if n := s.slots.maxLen(); n > compressedSize {
		compressedSize = n
	}
	if n := int(pix.SizeImage); s.grab == GrabRead && n > compressedSize {
		compressedSize = n
	}
	s.compressed = make([]byte, compressedSize)
	if s.inFormat == PixelFormatMJPEG {
		// Decoded frames may spill past the last row.
		s.frameBuf = make([]byte, s.width*(s.height+8)*2)
	} else {
		s.frameBuf = make([]byte, frameSize)
	}

	glog.V(1).Infof("%s: %s %dx%d -> %s, %d buffers using %s", s.device, s.inFormat, s.width, s.height, s.outFormat, s.slots.len(), s.grab)
	return nil
}

func (s *Session) allocBuffers(count uint32) error {
	n, err := s.drv.RequestBuffers(count)
	if err != nil {
		return newError(ErrAllocationFailed, s.device, "request buffers", err)
	}
	if n < 2 {
		return newError(ErrAllocationFailed, s.device, "request buffers", fmt.Errorf("insufficient buffer memory (%d buffers)", n))
	}
	for i := uint32(0); i < n; i++ {
		mem, err := s.drv.MapBuffer(i)
		if err != nil {
			return newError(ErrAllocationFailed, s.device, fmt.Sprintf("map buffer %d", i), err)
		}
		s.slots.add(mem)
	}
	for i := uint32(0); i < n; i++ {
		if err := s.slots.queue(s.drv, i); err != nil {
			return newError(ErrAllocationFailed, s.device, fmt.Sprintf("queue buffer %d", i), err)
		}
	}
	return nil
}

// CaptureFrame returns the next frame from the device, starting the stream
// on first use. A returned error is fatal: the session must be closed and
// every later call returns the same error.
func (s *Session) CaptureFrame() (Frame, error) {
	if s.closed {
		return Frame{}, newError(ErrDeviceIO, s.device, "capture", errors.New("session closed"))
	}
	if s.failed != nil {
		return Frame{}, s.failed
	}
	if !s.streaming {
		if err := s.enable(); err != nil {
			return Frame{}, s.fail(newError(ErrStreamStartFailed, s.device, "start capture", err))
		}
	}

	if s.grab == GrabRead {
		n, err := s.drv.Read(s.compressed)
		if err != nil {
			return Frame{}, s.fail(newError(ErrDeviceIO, s.device, "read frame", err))
		}
		f, err := s.consume(s.compressed[:n])
		if err != nil {
			return Frame{}, s.fail(err)
		}
		return f, nil
	}

	index, data, err := s.slots.dequeue(s.drv)
	if err != nil {
		return Frame{}, s.fail(newError(ErrDeviceIO, s.device, "dequeue buffer", err))
	}
	f, cerr := s.consume(data)
	if err := s.slots.queue(s.drv, index); err != nil {
		return Frame{}, s.fail(newError(ErrDeviceIO, s.device, fmt.Sprintf("requeue buffer %d", index), err))
	}
	if cerr != nil {
		return Frame{}, s.fail(cerr)
	}
	return f, nil
}

// consume copies a filled buffer into session memory.
func (s *Session) consume(data []byte) (Frame, error) {
	f := Frame{Width: s.width, Height: s.height}
	switch s.inFormat {
	case PixelFormatMJPEG:
		if len(data) <= MinFrameSize {
			glog.V(1).Infof("%s: ignoring empty buffer (%d bytes)", s.device, len(data))
			return Frame{Format: PixelFormatMJPEG, BytesUsed: len(data), Skipped: true}, nil
		}
		n := copy(s.compressed, data)
		glog.V(2).Infof("%s: %d bytes in use", s.device, n)
		if s.outFormat == OutputJPEG {
			f.Format = PixelFormatMJPEG
			f.Data = s.compressed[:n]
			f.BytesUsed = n
			return f, nil
		}
		w, h, err := frame.Decode(s.frameBuf, s.compressed[:n])
		if err != nil {
			return Frame{}, newError(ErrDecodeFailed, s.device, "decode frame", err)
		}
		// Decoders may emit up to a macroblock of rows past the last
		// one; those are cropped.
		if w != s.width || h < s.height || h > s.height+8 {
			return Frame{}, newError(ErrDecodeFailed, s.device, "decode frame",
				fmt.Errorf("frame is %dx%d, negotiated %dx%d", w, h, s.width, s.height))
		}
		if h != s.height {
			glog.V(2).Infof("%s: cropping decoded frame from %d to %d rows", s.device, h, s.height)
		}
		f.Format = PixelFormatYUYV
		f.Data = s.frameBuf[:(w+1)/2*4*s.height]
		f.BytesUsed = n
		return f, nil
	default:
		size := s.width * s.height * 2
		n := copy(s.frameBuf[:size], data)
		f.Format = PixelFormatYUYV
		f.Data = s.frameBuf[:size]
		f.BytesUsed = n
		return f, nil
	}
}

func (s *Session) enable() error {
	if s.grab == GrabMmap {
		if err := s.drv.StreamOn(); err != nil {
			return err
		}
	}
	s.streaming = true
	return nil
}

func (s *Session) fail(err error) error {
	s.failed = err
	return err
}

// Close stops streaming, unmaps the capture buffers and closes the device.
// Calling it again does nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	return s.teardown()
}

func (s *Session) teardown() error {
	s.closed = true
	var errs []error
	if s.streaming && s.grab == GrabMmap {
		if err := s.drv.StreamOff(); err != nil {
			errs = append(errs, fmt.Errorf("stop capture: %w", err))
		}
	}
	s.streaming = false
	// The device stays busy after close until every mapping is gone.
	if err := s.slots.release(s.drv); err != nil {
		errs = append(errs, fmt.Errorf("unmap buffers: %w", err))
	}
	s.compressed = nil
	s.frameBuf = nil
	if err := s.drv.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return newError(ErrDeviceIO, s.device, "close", errors.Join(errs...))
	}
	return nil
}

func (s *Session) Device() string { return s.device }
func (s *Session) Width() int { return s.width }
func (s *Session) Height() int { return s.height }
func (s *Session) InputFormat() PixelFormat { return s.inFormat }
func (s *Session) OutputFormat() OutputFormat { return s.outFormat }
func (s *Session) GrabMethod() GrabMethod { return s.grab }
func (s *Session) Capabilities() Capability { return s.caps }
func (s *Session) BufferCount() int { return s.slots.len() }
func (s *Session) Streaming() bool { return s.streaming }
func (s *Session) Controls() *ControlPort { return s.controls }

// SupportedFormats returns the pixel formats the device offers along with
// their descriptions.
func (s *Session) SupportedFormats() map[PixelFormat]string {
	result := make(map[PixelFormat]string)
	for index := uint32(0); ; index++ {
		code, desc, err := s.drv.EnumFormat(index)
		if err != nil {
			return result
		}
		result[code] = desc
	}
}

// SupportedFrameSizes returns the frame sizes the device offers for f.
func (s *Session) SupportedFrameSizes(f PixelFormat) []FrameSize {
	var result []FrameSize
	for index := uint32(0); ; index++ {
		size, err := s.drv.EnumFrameSize(f, index)
		if err != nil {
			return result
		}
		result = append(result, size)
	}
}
