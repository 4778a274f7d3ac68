package frame

import (
	"io"

	"golang.org/x/image/bmp"
)

// EncodeBMP converts a YUYV frame to RGB and writes it as a 24 bit BMP.
func EncodeBMP(w io.Writer, yuyv []byte, width, height int) error {
	img, err := RGBImage(yuyv, width, height)
	if err != nil {
		return err
	}
	return bmp.Encode(w, img)
}
