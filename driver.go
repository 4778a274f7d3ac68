package camcap

// Capability flags reported by VIDIOC_QUERYCAP.
const (
	CapVideoCapture uint32 = 0x00000001
	CapReadWrite    uint32 = 0x01000000
	CapStreaming    uint32 = 0x04000000
	CapDeviceCaps   uint32 = 0x80000000
)

// Control types reported by VIDIOC_QUERYCTRL.
const (
	CtrlTypeInteger     uint32 = 1
	CtrlTypeBoolean     uint32 = 2
	CtrlTypeMenu        uint32 = 3
	CtrlTypeButton      uint32 = 4
	CtrlTypeInteger64   uint32 = 5
	CtrlTypeClass       uint32 = 6
	CtrlTypeString      uint32 = 7
	CtrlTypeBitmask     uint32 = 8
	CtrlTypeIntegerMenu uint32 = 9
)

const CtrlFlagDisabled uint32 = 0x0001

type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Capabilities uint32
}

// Has reports whether every bit of flag is set.
func (c Capability) Has(flag uint32) bool {
	return c.Capabilities&flag == flag
}

// PixFormat is the single-planar image format exchanged with VIDIOC_S_FMT.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  PixelFormat
	BytesPerLine uint32
	SizeImage    uint32
}

// ControlInfo is the metadata returned by VIDIOC_QUERYCTRL.
type ControlInfo struct {
	ID      ControlID
	Type    uint32
	Name    string
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   uint32
}

// Driver speaks the V4L2 ioctl protocol for one open device node.
// Every method blocks until the driver answers.
type Driver interface {
	QueryCapabilities() (Capability, error)
	EnumFormat(index uint32) (PixelFormat, string, error)
	EnumFrameSize(format PixelFormat, index uint32) (FrameSize, error)
	// SetFormat requests f and updates it with what the driver accepted.
	SetFormat(f *PixFormat) error

	RequestBuffers(count uint32) (uint32, error)
	// MapBuffer queries slot index and maps it into memory.
	MapBuffer(index uint32) ([]byte, error)
	UnmapBuffer(b []byte) error
	QueueBuffer(index uint32) error
	DequeueBuffer() (index, bytesUsed uint32, err error)
	StreamOn() error
	StreamOff() error
	// Read is used by the read() grab method.
	Read(p []byte) (int, error)

	QueryControl(id ControlID) (ControlInfo, error)
	GetControl(id ControlID) (int32, error)
	SetControl(id ControlID, value int32) error

	Close() error
}

// Opener opens a device node and returns a Driver for it.
type Opener func(path string) (Driver, error)
