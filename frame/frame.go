// Package frame converts raw webcam frames between YUYV, MJPEG and RGB and
// encodes them as JPEG or BMP images. Nothing in this package keeps state
// or does I/O beyond the writer it is handed.
package frame

import "fmt"

// YUYVSize returns the number of bytes in a packed YUYV 4:2:2 frame.
func YUYVSize(width, height int) int {
	return (width*height + 1) / 2 * 4
}

func checkYUYV(b []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("illegal frame size %dx%d", width, height)
	}
	if exp := YUYVSize(width, height); len(b) < exp {
		return fmt.Errorf("wrong frame length (exp: %d, read %d)", exp, len(b))
	}
	return nil
}

func errShortDst(exp, got int) error {
	return fmt.Errorf("destination too small (need %d, have %d)", exp, got)
}
