package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func TestDecode_Formats(t *testing.T) {
	encoders := map[string]func(*bytes.Buffer, image.Image) error{
		"png":  func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) },
		"bmp":  func(b *bytes.Buffer, m image.Image) error { return bmp.Encode(b, m) },
		"tiff": func(b *bytes.Buffer, m image.Image) error { return tiff.Encode(b, m, nil) },
	}

	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := encode(&buf, testFrame()); err != nil {
				t.Fatal(err)
			}
			img, err := Decode(0, buf.Bytes())
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := img.Bounds().Size(); got != (image.Point{X: 4, Y: 3}) {
				t.Errorf("size = %v, want 4x3", got)
			}
		})
	}
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(2, []byte("definitely not an image"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if de.Display != 2 {
		t.Errorf("Display = %d, want 2", de.Display)
	}
	if !errors.Is(err, image.ErrFormat) {
		t.Errorf("error = %v, want to wrap image.ErrFormat", err)
	}
}
