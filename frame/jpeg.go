package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
)

// EncodeJPEG converts a YUYV frame to RGB and writes it as a JPEG image.
// quality runs from 0 to 100; higher gives larger, less lossy files.
func EncodeJPEG(w io.Writer, yuyv []byte, width, height, quality int) error {
	img, err := RGBImage(yuyv, width, height)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// WriteJPEG writes an MJPEG frame as a standalone JPEG file.
func WriteJPEG(w io.Writer, mjpeg []byte) error {
	_, err := w.Write(InsertHuffman(mjpeg))
	return err
}

// Decode decodes an MJPEG frame into packed YUYV in dst and returns the
// frame dimensions.
func Decode(dst, src []byte) (width, height int, err error) {
	img, err := jpeg.Decode(bytes.NewReader(InsertHuffman(src)))
	if err != nil {
		return 0, 0, err
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()
	// Each row is padded to a whole 4 byte group.
	if exp := (width + 1) / 2 * 4 * height; len(dst) < exp {
		return 0, 0, fmt.Errorf("%dx%d frame does not fit: %w", width, height, errShortDst(exp, len(dst)))
	}

	sample := sampler(img)
	p := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x += 2 {
			y0, cb, cr := sample(b.Min.X+x, b.Min.Y+y)
			y1 := y0
			if x+1 < width {
				y1, _, _ = sample(b.Min.X+x+1, b.Min.Y+y)
			}
			dst[p] = y0
			dst[p+1] = cb
			dst[p+2] = y1
			dst[p+3] = cr
			p += 4
		}
	}
	return width, height, nil
}

// sampler returns a function reading Y, Cb and Cr at a pixel, using the
// decoded planes directly for the layouts image/jpeg produces.
func sampler(img image.Image) func(x, y int) (uint8, uint8, uint8) {
	switch m := img.(type) {
	case *image.YCbCr:
		return func(x, y int) (uint8, uint8, uint8) {
			ci := m.COffset(x, y)
			return m.Y[m.YOffset(x, y)], m.Cb[ci], m.Cr[ci]
		}
	case *image.Gray:
		return func(x, y int) (uint8, uint8, uint8) {
			return m.Pix[m.PixOffset(x, y)], 128, 128
		}
	}
	return func(x, y int) (uint8, uint8, uint8) {
		c := color.YCbCrModel.Convert(img.At(x, y)).(color.YCbCr)
		return c.Y, c.Cb, c.Cr
	}
}
