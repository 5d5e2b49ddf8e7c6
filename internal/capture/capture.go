// Package capture grabs one frame per attached display and decodes frames
// into images.
package capture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	"github.com/kbinani/screenshot"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// Display is one capturable screen.
type Display interface {
	Index() int
	Bounds() image.Rectangle
	// Capture returns one encoded frame.
	Capture() ([]byte, error)
}

// Source enumerates displays in a stable order.
type Source interface {
	Displays() ([]Display, error)
}

// DecodeError is a frame that could not be captured or decoded.
type DecodeError struct {
	Display int
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("display %d: %v", e.Display, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns an encoded frame into an image, sniffing its format.
func Decode(display int, frame []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, &DecodeError{Display: display, Err: err}
	}
	return img, nil
}

// ScreenSource captures the local desktop screens.
type ScreenSource struct{}

// NewScreenSource returns the desktop capture source.
func NewScreenSource() *ScreenSource { return &ScreenSource{} }

// Displays implements Source.
func (s *ScreenSource) Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n < 0 {
		return nil, fmt.Errorf("enumerating displays: got %d", n)
	}
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		displays = append(displays, &screen{index: i, bounds: screenshot.GetDisplayBounds(i)})
	}
	return displays, nil
}

type screen struct {
	index  int
	bounds image.Rectangle
}

func (s *screen) Index() int              { return s.index }
func (s *screen) Bounds() image.Rectangle { return s.bounds }

func (s *screen) Capture() ([]byte, error) {
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		return nil, &DecodeError{Display: s.index, Err: err}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &DecodeError{Display: s.index, Err: err}
	}
	return buf.Bytes(), nil
}
