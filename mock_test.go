package camcap

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

type fakeControl struct {
	info  ControlInfo
	value int32
}

// fakeDriver plays the kernel side of the V4L2 protocol in memory. Frames
// are served in order; once they run out the last one repeats.
type fakeDriver struct {
	caps uint32

	// Largest frame the driver agrees to; zero accepts any request.
	maxWidth, maxHeight uint32
	// Format answered by SetFormat; zero echoes the request.
	answerFormat PixelFormat
	setFormatErr error

	reqErr    error
	grant     uint32
	mapFailAt int
	slotLen   int

	mem    [][]byte
	mapped map[*byte]bool
	queued []bool
	fifo   []uint32

	frames     [][]byte
	next       int
	dqErr      error
	dqCalls    int
	badIndex   bool
	qErr       error
	qFailAfter int

	streamOnErr   error
	streamOnCalls int
	streaming     bool
	readCalls     int

	controls map[ControlID]*fakeControl
	busy     int
	setCalls int

	closed     bool
	closeCalls int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		caps:      CapVideoCapture | CapStreaming | CapReadWrite,
		mapFailAt: -1,
		mapped:    make(map[*byte]bool),
		controls:  make(map[ControlID]*fakeControl),
	}
}

func (d *fakeDriver) opener(calls *int) Opener {
	return func(string) (Driver, error) {
		if calls != nil {
			*calls++
		}
		return d, nil
	}
}

func (d *fakeDriver) QueryCapabilities() (Capability, error) {
	return Capability{Driver: "fake", Card: "Fake Camera", Capabilities: d.caps}, nil
}

func (d *fakeDriver) EnumFormat(index uint32) (PixelFormat, string, error) {
	formats := []PixelFormat{PixelFormatYUYV, PixelFormatMJPEG}
	if int(index) >= len(formats) {
		return 0, "", unix.EINVAL
	}
	return formats[index], formats[index].String(), nil
}

func (d *fakeDriver) EnumFrameSize(format PixelFormat, index uint32) (FrameSize, error) {
	sizes := []uint32{320, 640}
	if int(index) >= len(sizes) {
		return FrameSize{}, unix.EINVAL
	}
	w := sizes[index]
	return FrameSize{MinWidth: w, MaxWidth: w, MinHeight: w * 3 / 4, MaxHeight: w * 3 / 4}, nil
}

func (d *fakeDriver) SetFormat(f *PixFormat) error {
	if d.setFormatErr != nil {
		return d.setFormatErr
	}
	if d.maxWidth != 0 && f.Width > d.maxWidth {
		f.Width = d.maxWidth
	}
	if d.maxHeight != 0 && f.Height > d.maxHeight {
		f.Height = d.maxHeight
	}
	if d.answerFormat != 0 {
		f.PixelFormat = d.answerFormat
	}
	f.BytesPerLine = f.Width * 2
	f.SizeImage = f.Width * f.Height * 2
	if d.slotLen == 0 {
		d.slotLen = int(f.SizeImage)
	}
	return nil
}

func (d *fakeDriver) RequestBuffers(count uint32) (uint32, error) {
	if d.reqErr != nil {
		return 0, d.reqErr
	}
	if d.grant != 0 {
		count = d.grant
	}
	d.mem = make([][]byte, count)
	d.queued = make([]bool, count)
	return count, nil
}

func (d *fakeDriver) MapBuffer(index uint32) ([]byte, error) {
	if int(index) == d.mapFailAt {
		return nil, unix.ENOMEM
	}
	b := make([]byte, d.slotLen)
	d.mem[index] = b
	d.mapped[&b[0]] = true
	return b, nil
}

func (d *fakeDriver) UnmapBuffer(b []byte) error {
	if len(b) == 0 || !d.mapped[&b[0]] {
		return unix.EINVAL
	}
	delete(d.mapped, &b[0])
	return nil
}

func (d *fakeDriver) QueueBuffer(index uint32) error {
	if d.qErr != nil && d.qFailAfter == 0 {
		return d.qErr
	}
	if d.qFailAfter > 0 {
		d.qFailAfter--
	}
	if d.queued[index] {
		return unix.EINVAL
	}
	d.queued[index] = true
	d.fifo = append(d.fifo, index)
	return nil
}

func (d *fakeDriver) nextFrame() []byte {
	if len(d.frames) == 0 {
		return nil
	}
	f := d.frames[d.next]
	if d.next < len(d.frames)-1 {
		d.next++
	}
	return f
}

func (d *fakeDriver) DequeueBuffer() (uint32, uint32, error) {
	d.dqCalls++
	if d.dqErr != nil {
		return 0, 0, d.dqErr
	}
	if !d.streaming {
		return 0, 0, unix.EINVAL
	}
	if len(d.fifo) == 0 {
		return 0, 0, unix.EAGAIN
	}
	index := d.fifo[0]
	d.fifo = d.fifo[1:]
	d.queued[index] = false
	f := d.nextFrame()
	copy(d.mem[index], f)
	if d.badIndex {
		return uint32(len(d.mem)) + 5, uint32(len(f)), nil
	}
	return index, uint32(len(f)), nil
}

func (d *fakeDriver) StreamOn() error {
	d.streamOnCalls++
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.streaming = true
	return nil
}

func (d *fakeDriver) StreamOff() error {
	d.streaming = false
	return nil
}

func (d *fakeDriver) Read(p []byte) (int, error) {
	d.readCalls++
	if len(d.frames) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(p, d.nextFrame()), nil
}

func (d *fakeDriver) addControl(info ControlInfo, value int32) {
	d.controls[info.ID] = &fakeControl{info: info, value: value}
}

func (d *fakeDriver) QueryControl(id ControlID) (ControlInfo, error) {
	c, ok := d.controls[id]
	if !ok {
		return ControlInfo{}, unix.EINVAL
	}
	return c.info, nil
}

func (d *fakeDriver) GetControl(id ControlID) (int32, error) {
	c, ok := d.controls[id]
	if !ok {
		return 0, unix.EINVAL
	}
	return c.value, nil
}

func (d *fakeDriver) SetControl(id ControlID, value int32) error {
	c, ok := d.controls[id]
	if !ok {
		return unix.EINVAL
	}
	if d.busy > 0 {
		d.busy--
		return unix.EBUSY
	}
	d.setCalls++
	c.value = value
	return nil
}

func (d *fakeDriver) Close() error {
	d.closeCalls++
	if d.closed {
		return errors.New("already closed")
	}
	d.closed = true
	return nil
}

func (d *fakeDriver) queuedCount() int {
	n := 0
	for _, q := range d.queued {
		if q {
			n++
		}
	}
	return n
}
