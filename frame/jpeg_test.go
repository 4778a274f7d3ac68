package frame

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func within(got, want, tol int) bool {
	d := got - want
	return d >= -tol && d <= tol
}

func TestEncodeJPEGSolidGray(t *testing.T) {
	width, height := 640, 480
	src := solidYUYV(width, height, 128, 128, 128)

	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, src, width, height, 95); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		t.Fatalf("decoded %v, want %dx%d", b, width, height)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if !within(int(r>>8), 128, 2) || !within(int(g>>8), 128, 2) || !within(int(b>>8), 128, 2) {
				t.Fatalf("(%d,%d) = %d,%d,%d, want 128 gray", x, y, r>>8, g>>8, b>>8)
			}
		}
	}
}

// encodeGray returns a baseline JPEG of a flat gray image.
func encodeGray(t *testing.T, width, height int, level uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = level, level, level, 0xff
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// stripDHT removes every Huffman table segment, the way UVC cameras
// deliver MJPEG frames.
func stripDHT(src []byte) []byte {
	out := append([]byte{}, src[:2]...)
	pos := 2
	for pos+4 <= len(src) && src[pos+1] != markerSOS {
		n := 2 + (int(src[pos+2])<<8 | int(src[pos+3]))
		if src[pos+1] != markerDHT {
			out = append(out, src[pos:pos+n]...)
		}
		pos += n
	}
	return append(out, src[pos:]...)
}

func TestInsertHuffman(t *testing.T) {
	full := encodeGray(t, 32, 16, 90)
	if got := InsertHuffman(full); !bytes.Equal(got, full) {
		t.Error("frame with tables was modified")
	}

	stripped := stripDHT(full)
	if len(stripped) >= len(full) {
		t.Fatal("no Huffman tables were stripped")
	}
	if _, err := jpeg.Decode(bytes.NewReader(stripped)); err == nil {
		t.Fatal("frame without tables decoded")
	}
	fixed := InsertHuffman(stripped)
	if len(fixed) != len(stripped)+len(dhtSegment) {
		t.Errorf("inserted %d bytes, want %d", len(fixed)-len(stripped), len(dhtSegment))
	}
	if _, err := jpeg.Decode(bytes.NewReader(fixed)); err != nil {
		t.Errorf("decode after insertion: %v", err)
	}

	notJPEG := []byte{1, 2, 3, 4, 5}
	if got := InsertHuffman(notJPEG); !bytes.Equal(got, notJPEG) {
		t.Error("non-JPEG input was modified")
	}
}

func TestWriteJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJPEG(&buf, stripDHT(encodeGray(t, 16, 16, 40))); err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if c := color.GrayModel.Convert(img.At(3, 3)).(color.Gray); !within(int(c.Y), 40, 2) {
		t.Errorf("pixel = %d, want 40", c.Y)
	}
}

func TestDecode(t *testing.T) {
	width, height := 16, 8
	src := stripDHT(encodeGray(t, width, height, 128))
	dst := make([]byte, width*(height+8)*2)

	w, h, err := Decode(dst, src)
	if err != nil {
		t.Fatal(err)
	}
	if w != width || h != height {
		t.Fatalf("decoded %dx%d, want %dx%d", w, h, width, height)
	}
	for i := 0; i < width*height*2; i++ {
		if !within(int(dst[i]), 128, 2) {
			t.Fatalf("byte %d = %d, want about 128", i, dst[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good := encodeGray(t, 16, 8, 10)
	tests := []struct {
		name string
		dst  []byte
		src  []byte
	}{
		{"garbage", make([]byte, 1024), []byte{0xff, 0xd8, 0x00, 0x01, 0x02}},
		{"truncated", make([]byte, 1024), good[:len(good)/2]},
		{"empty", make([]byte, 1024), nil},
		{"destination too small", make([]byte, 16), good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.dst, tt.src); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
