//go:build linux

package camcap

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/adamlouis/camcap/ioctl"
	"golang.org/x/sys/unix"
)

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE uint32 = 1
	V4L2_MEMORY_MMAP            uint32 = 1
	V4L2_FIELD_ANY              uint32 = 0
)

const (
	V4L2_FRMSIZE_TYPE_DISCRETE   uint32 = 1
	V4L2_FRMSIZE_TYPE_CONTINUOUS uint32 = 2
	V4L2_FRMSIZE_TYPE_STEPWISE   uint32 = 3
)

var (
	VIDIOC_QUERYCAP  = ioctl.IoR(uintptr('V'), 0, unsafe.Sizeof(v4l2_capability{}))
	VIDIOC_ENUM_FMT  = ioctl.IoRW(uintptr('V'), 2, unsafe.Sizeof(v4l2_fmtdesc{}))
	VIDIOC_S_FMT     = ioctl.IoRW(uintptr('V'), 5, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_REQBUFS   = ioctl.IoRW(uintptr('V'), 8, unsafe.Sizeof(v4l2_requestbuffers{}))
	VIDIOC_QUERYBUF  = ioctl.IoRW(uintptr('V'), 9, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_QBUF      = ioctl.IoRW(uintptr('V'), 15, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_DQBUF     = ioctl.IoRW(uintptr('V'), 17, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_G_CTRL    = ioctl.IoRW(uintptr('V'), 27, unsafe.Sizeof(v4l2_control{}))
	VIDIOC_S_CTRL    = ioctl.IoRW(uintptr('V'), 28, unsafe.Sizeof(v4l2_control{}))
	VIDIOC_QUERYCTRL = ioctl.IoRW(uintptr('V'), 36, unsafe.Sizeof(v4l2_queryctrl{}))
	//sizeof int32
	VIDIOC_STREAMON        = ioctl.IoW(uintptr('V'), 18, 4)
	VIDIOC_STREAMOFF       = ioctl.IoW(uintptr('V'), 19, 4)
	VIDIOC_ENUM_FRAMESIZES = ioctl.IoRW(uintptr('V'), 74, unsafe.Sizeof(v4l2_frmsizeenum{}))
	NativeByteOrder        = getNativeByteOrder()
)

type v4l2_capability struct {
	driver       [16]uint8
	card         [32]uint8
	bus_info     [32]uint8
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_fmtdesc struct {
	index       uint32
	_type       uint32
	flags       uint32
	description [32]uint8
	pixelformat uint32
	reserved    [4]uint32
}

type v4l2_frmsizeenum struct {
	index        uint32
	pixel_format uint32
	_type        uint32
	union        [24]uint8
	reserved     [2]uint32
}

type v4l2_frmsize_discrete struct {
	Width  uint32
	Height uint32
}

type v4l2_frmsize_stepwise struct {
	Min_width   uint32
	Max_width   uint32
	Step_width  uint32
	Min_height  uint32
	Max_height  uint32
	Step_height uint32
}

// Hack to make go compiler properly align union
type v4l2_format_aligned_union struct {
	data [200 - unsafe.Sizeof(uintptr(0))]byte
	_    unsafe.Pointer
}

type v4l2_format struct {
	_type uint32
	union v4l2_format_aligned_union
}

type v4l2_pix_format struct {
	Width        uint32
	Height       uint32
	Pixelformat  uint32
	Field        uint32
	Bytesperline uint32
	Sizeimage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	Ycbcr_enc    uint32
	Quantization uint32
	Xfer_func    uint32
}

type v4l2_requestbuffers struct {
	count    uint32
	_type    uint32
	memory   uint32
	reserved [2]uint32
}

type v4l2_buffer struct {
	index     uint32
	_type     uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32
	union     [unsafe.Sizeof(uintptr(0))]uint8
	length    uint32
	reserved2 uint32
	reserved  uint32
}

type v4l2_timecode struct {
	_type    uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2_queryctrl struct {
	id            uint32
	_type         uint32
	name          [32]uint8
	minimum       int32
	maximum       int32
	step          int32
	default_value int32
	flags         uint32
	reserved      [2]uint32
}

type v4l2_control struct {
	id    uint32
	value int32
}

// device is the Driver for a real V4L2 node.
type device struct {
	fd uintptr
}

// OpenDevice opens path read/write in blocking mode.
func OpenDevice(path string) (Driver, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &device{fd: uintptr(fd)}, nil
}

func (d *device) QueryCapabilities() (Capability, error) {
	caps := &v4l2_capability{}
	if err := ioctl.Ioctl(d.fd, VIDIOC_QUERYCAP, uintptr(unsafe.Pointer(caps))); err != nil {
		return Capability{}, err
	}
	c := Capability{
		Driver:       CToGoString(caps.driver[:]),
		Card:         CToGoString(caps.card[:]),
		BusInfo:      CToGoString(caps.bus_info[:]),
		Capabilities: caps.capabilities,
	}
	// Prefer the per-node capabilities when the driver reports them.
	if caps.capabilities&CapDeviceCaps != 0 {
		c.Capabilities = caps.device_caps
	}
	return c, nil
}

func (d *device) EnumFormat(index uint32) (PixelFormat, string, error) {
	fmtdesc := &v4l2_fmtdesc{}
	fmtdesc.index = index
	fmtdesc._type = V4L2_BUF_TYPE_VIDEO_CAPTURE

	if err := ioctl.Ioctl(d.fd, VIDIOC_ENUM_FMT, uintptr(unsafe.Pointer(fmtdesc))); err != nil {
		return 0, "", err
	}
	return PixelFormat(fmtdesc.pixelformat), CToGoString(fmtdesc.description[:]), nil
}

func (d *device) EnumFrameSize(format PixelFormat, index uint32) (frameSize FrameSize, err error) {
	frmsizeenum := &v4l2_frmsizeenum{}
	frmsizeenum.index = index
	frmsizeenum.pixel_format = uint32(format)

	err = ioctl.Ioctl(d.fd, VIDIOC_ENUM_FRAMESIZES, uintptr(unsafe.Pointer(frmsizeenum)))
	if err != nil {
		return
	}

	switch frmsizeenum._type {

	case V4L2_FRMSIZE_TYPE_DISCRETE:
		discrete := &v4l2_frmsize_discrete{}
		err = binary.Read(bytes.NewBuffer(frmsizeenum.union[:]), NativeByteOrder, discrete)
		if err != nil {
			return
		}

		frameSize.MinWidth = discrete.Width
		frameSize.MaxWidth = discrete.Width
		frameSize.MinHeight = discrete.Height
		frameSize.MaxHeight = discrete.Height

	case V4L2_FRMSIZE_TYPE_CONTINUOUS, V4L2_FRMSIZE_TYPE_STEPWISE:
		stepwise := &v4l2_frmsize_stepwise{}
		err = binary.Read(bytes.NewBuffer(frmsizeenum.union[:]), NativeByteOrder, stepwise)
		if err != nil {
			return
		}

		frameSize.MinWidth = stepwise.Min_width
		frameSize.MaxWidth = stepwise.Max_width
		frameSize.StepWidth = stepwise.Step_width
		frameSize.MinHeight = stepwise.Min_height
		frameSize.MaxHeight = stepwise.Max_height
		frameSize.StepHeight = stepwise.Step_height
	}

	return
}

func (d *device) SetFormat(f *PixFormat) error {
	format := &v4l2_format{
		_type: V4L2_BUF_TYPE_VIDEO_CAPTURE,
	}

	pix := v4l2_pix_format{
		Width:       f.Width,
		Height:      f.Height,
		Pixelformat: uint32(f.PixelFormat),
		Field:       V4L2_FIELD_ANY,
	}

	pixbytes := &bytes.Buffer{}
	if err := binary.Write(pixbytes, NativeByteOrder, pix); err != nil {
		return err
	}
	copy(format.union.data[:], pixbytes.Bytes())

	if err := ioctl.Ioctl(d.fd, VIDIOC_S_FMT, uintptr(unsafe.Pointer(format))); err != nil {
		return err
	}

	pixReverse := &v4l2_pix_format{}
	if err := binary.Read(bytes.NewBuffer(format.union.data[:]), NativeByteOrder, pixReverse); err != nil {
		return err
	}

	f.Width = pixReverse.Width
	f.Height = pixReverse.Height
	f.PixelFormat = PixelFormat(pixReverse.Pixelformat)
	f.BytesPerLine = pixReverse.Bytesperline
	f.SizeImage = pixReverse.Sizeimage
	return nil
}

func (d *device) RequestBuffers(count uint32) (uint32, error) {
	req := &v4l2_requestbuffers{}
	req.count = count
	req._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	req.memory = V4L2_MEMORY_MMAP

	if err := ioctl.Ioctl(d.fd, VIDIOC_REQBUFS, uintptr(unsafe.Pointer(req))); err != nil {
		return 0, err
	}
	return req.count, nil
}

func (d *device) MapBuffer(index uint32) ([]byte, error) {
	req := &v4l2_buffer{}
	req._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	req.memory = V4L2_MEMORY_MMAP
	req.index = index

	if err := ioctl.Ioctl(d.fd, VIDIOC_QUERYBUF, uintptr(unsafe.Pointer(req))); err != nil {
		return nil, err
	}

	var offset uint32
	if err := binary.Read(bytes.NewBuffer(req.union[:]), NativeByteOrder, &offset); err != nil {
		return nil, err
	}

	return unix.Mmap(int(d.fd), int64(offset), int(req.length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *device) UnmapBuffer(b []byte) error {
	return unix.Munmap(b)
}

func (d *device) QueueBuffer(index uint32) error {
	buffer := &v4l2_buffer{}
	buffer._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	buffer.memory = V4L2_MEMORY_MMAP
	buffer.index = index

	return ioctl.Ioctl(d.fd, VIDIOC_QBUF, uintptr(unsafe.Pointer(buffer)))
}

func (d *device) DequeueBuffer() (index, bytesUsed uint32, err error) {
	buffer := &v4l2_buffer{}
	buffer._type = V4L2_BUF_TYPE_VIDEO_CAPTURE
	buffer.memory = V4L2_MEMORY_MMAP

	if err = ioctl.Ioctl(d.fd, VIDIOC_DQBUF, uintptr(unsafe.Pointer(buffer))); err != nil {
		return
	}
	return buffer.index, buffer.bytesused, nil
}

func (d *device) StreamOn() error {
	var bufType uint32 = V4L2_BUF_TYPE_VIDEO_CAPTURE
	return ioctl.Ioctl(d.fd, VIDIOC_STREAMON, uintptr(unsafe.Pointer(&bufType)))
}

func (d *device) StreamOff() error {
	var bufType uint32 = V4L2_BUF_TYPE_VIDEO_CAPTURE
	return ioctl.Ioctl(d.fd, VIDIOC_STREAMOFF, uintptr(unsafe.Pointer(&bufType)))
}

func (d *device) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(d.fd), p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (d *device) QueryControl(id ControlID) (ControlInfo, error) {
	query := &v4l2_queryctrl{id: uint32(id)}
	if err := ioctl.Ioctl(d.fd, VIDIOC_QUERYCTRL, uintptr(unsafe.Pointer(query))); err != nil {
		return ControlInfo{}, err
	}
	return ControlInfo{
		ID:      ControlID(query.id),
		Type:    query._type,
		Name:    CToGoString(query.name[:]),
		Minimum: query.minimum,
		Maximum: query.maximum,
		Step:    query.step,
		Default: query.default_value,
		Flags:   query.flags,
	}, nil
}

func (d *device) GetControl(id ControlID) (int32, error) {
	ctrl := &v4l2_control{id: uint32(id)}
	if err := ioctl.Ioctl(d.fd, VIDIOC_G_CTRL, uintptr(unsafe.Pointer(ctrl))); err != nil {
		return 0, err
	}
	return ctrl.value, nil
}

func (d *device) SetControl(id ControlID, value int32) error {
	ctrl := &v4l2_control{}
	ctrl.id = uint32(id)
	ctrl.value = value
	return ioctl.Ioctl(d.fd, VIDIOC_S_CTRL, uintptr(unsafe.Pointer(ctrl)))
}

func (d *device) Close() error {
	return unix.Close(int(d.fd))
}

func getNativeByteOrder() binary.ByteOrder {
	var i int32 = 0x01020304
	u := unsafe.Pointer(&i)
	pb := (*byte)(u)
	b := *pb
	if b == 0x04 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func CToGoString(c []byte) string {
	n := -1
	for i, b := range c {
		if b == 0 {
			break
		}
		n = i
	}
	return string(c[:n+1])
}
