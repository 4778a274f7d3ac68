package camcap

import (
	"fmt"
	"strings"
)

type PixelFormat uint32

const (
	PixelFormatYUYV  PixelFormat = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	PixelFormatMJPEG PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
)

// String returns the four character code.
func (pf PixelFormat) String() string {
	b := []byte{byte(pf), byte(pf >> 8), byte(pf >> 16), byte(pf >> 24)}
	return string(b)
}

// Compressed reports whether frames in this format carry a variable
// number of bytes.
func (pf PixelFormat) Compressed() bool {
	return pf == PixelFormatMJPEG
}

// ParsePixelFormat converts a four character code, or one of the common
// aliases, to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToUpper(s) {
	case "YUYV", "YUYV 4:2:2":
		return PixelFormatYUYV, nil
	case "MJPEG", "MJPG", "MOTION-JPEG":
		return PixelFormatMJPEG, nil
	}
	if len(s) != 4 {
		return 0, fmt.Errorf("%s: illegal FourCC", s)
	}
	return PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24), nil
}

// OutputFormat selects what a captured frame is turned into.
type OutputFormat int

const (
	OutputJPEG OutputFormat = iota
	OutputYUYV
	OutputBMP
)

func (f OutputFormat) String() string {
	switch f {
	case OutputJPEG:
		return "JPEG"
	case OutputYUYV:
		return "YUYV"
	case OutputBMP:
		return "BMP"
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}

// Struct that describes frame size supported by a webcam
// For fixed sizes min and max values will be the same and
// step value will be equal to '0'
type FrameSize struct {
	MinWidth  uint32
	MaxWidth  uint32
	StepWidth uint32

	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

func (s FrameSize) GetString() string {
	if s.StepWidth == 0 && s.StepHeight == 0 {
		return fmt.Sprintf("%dx%d", s.MaxWidth, s.MaxHeight)
	}
	return fmt.Sprintf("[%d-%d;%d]x[%d-%d;%d]", s.MinWidth, s.MaxWidth, s.StepWidth, s.MinHeight, s.MaxHeight, s.StepHeight)
}
