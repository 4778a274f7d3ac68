package frame

import "image"

// scanner walks a packed YUYV buffer one RGB scanline at a time. Each 4
// byte group Y0 U Y1 V yields two pixels sharing U and V.
type scanner struct {
	src   []byte
	width int
	p     int
	odd   bool
}

// next converts the following width pixels into line, which holds
// bpp bytes per pixel with R, G, B first. Any extra bytes per pixel are
// set to 0xff.
func (s *scanner) next(line []byte, bpp int) {
	for x := 0; x < s.width; x++ {
		var y int
		if !s.odd {
			y = int(s.src[s.p]) << 8
		} else {
			y = int(s.src[s.p+2]) << 8
		}
		u := int(s.src[s.p+1]) - 128
		v := int(s.src[s.p+3]) - 128

		i := x * bpp
		line[i] = clamp((y + 359*v) >> 8)
		line[i+1] = clamp((y - 88*u - 183*v) >> 8)
		line[i+2] = clamp((y + 454*u) >> 8)
		for j := 3; j < bpp; j++ {
			line[i+j] = 0xff
		}

		if s.odd {
			s.p += 4
		}
		s.odd = !s.odd
	}
}

func clamp(c int) uint8 {
	if c > 255 {
		return 255
	}
	if c < 0 {
		return 0
	}
	return uint8(c)
}

// YUYVToRGB converts a YUYV frame into packed 24 bit RGB in dst, which
// must hold width*height*3 bytes.
func YUYVToRGB(dst, src []byte, width, height int) error {
	if err := checkYUYV(src, width, height); err != nil {
		return err
	}
	stride := width * 3
	if len(dst) < stride*height {
		return errShortDst(stride*height, len(dst))
	}
	s := &scanner{src: src, width: width}
	for y := 0; y < height; y++ {
		s.next(dst[y*stride:(y+1)*stride], 3)
	}
	return nil
}

// RGBImage converts a YUYV frame into an opaque RGBA image, top row first.
func RGBImage(src []byte, width, height int) (*image.RGBA, error) {
	if err := checkYUYV(src, width, height); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	s := &scanner{src: src, width: width}
	for y := 0; y < height; y++ {
		s.next(img.Pix[y*img.Stride:y*img.Stride+width*4], 4)
	}
	return img, nil
}
